package scoring

// protocolProfile is the per-minute baseline allocation for one protocol.
// Power is in milliwatts, data in KB/s, memory in MB, priority 1 (highest)
// through 10.
type protocolProfile struct {
	PowerMilliwatts int
	DataKBps        int
	MemoryMB        int
	QueuePriority   int
}

// memoryQuantumMB is the allocation granularity; every grant is rounded up
// to a multiple of it.
const memoryQuantumMB = 32

// protocolProfiles are the baseline resource envelopes per protocol.
// Unknown protocols fall back to conservativeProfile.
var protocolProfiles = map[string]protocolProfile{
	"sip_voice":    {PowerMilliwatts: 250, DataKBps: 64, MemoryMB: 32, QueuePriority: 5},
	"webrtc_video": {PowerMilliwatts: 900, DataKBps: 2500, MemoryMB: 128, QueuePriority: 4},
	"screen_share": {PowerMilliwatts: 700, DataKBps: 1500, MemoryMB: 96, QueuePriority: 4},
	"matrix_chat":  {PowerMilliwatts: 50, DataKBps: 16, MemoryMB: 32, QueuePriority: 6},
	"doc_signing":  {PowerMilliwatts: 120, DataKBps: 128, MemoryMB: 64, QueuePriority: 5},
	"file_share":   {PowerMilliwatts: 200, DataKBps: 512, MemoryMB: 64, QueuePriority: 6},
	"mqtt":         {PowerMilliwatts: 30, DataKBps: 8, MemoryMB: 32, QueuePriority: 7},
	"coap":         {PowerMilliwatts: 20, DataKBps: 4, MemoryMB: 32, QueuePriority: 7},
	"http":         {PowerMilliwatts: 100, DataKBps: 256, MemoryMB: 64, QueuePriority: 6},
	"email":        {PowerMilliwatts: 40, DataKBps: 32, MemoryMB: 32, QueuePriority: 8},
}

// conservativeProfile covers protocols the table does not know: minimal
// bandwidth, lowest priority.
var conservativeProfile = protocolProfile{
	PowerMilliwatts: 25,
	DataKBps:        8,
	MemoryMB:        memoryQuantumMB,
	QueuePriority:   9,
}

func profileFor(protocol string) protocolProfile {
	if p, ok := protocolProfiles[protocol]; ok {
		return p
	}
	return conservativeProfile
}

// quantizeMemory rounds mb up to the next allocation quantum, with the
// quantum itself as the floor.
func quantizeMemory(mb int) int {
	if mb <= memoryQuantumMB {
		return memoryQuantumMB
	}
	if rem := mb % memoryQuantumMB; rem != 0 {
		mb += memoryQuantumMB - rem
	}
	return mb
}
