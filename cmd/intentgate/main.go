// intentgate is the trust-gated intent admission gateway.
package main

import "github.com/humotica/intentgate/internal/cli"

func main() {
	cli.Execute()
}
