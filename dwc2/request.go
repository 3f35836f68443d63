package dwc2

import "sync"

// freeRequestCacheThreshold bounds the free-request cache (C2); completions
// beyond this deallocate instead of enqueueing (property P2).
const freeRequestCacheThreshold = 1024

// Control transfer phase.
type ctrlPhase int

const (
	ctrlPhaseSetup ctrlPhase = iota
	ctrlPhaseData
	ctrlPhaseStatus
)

// Packet ID / data toggle values, as programmed into HCTSIZ.PID.
const (
	pidData0 = 0b00
	pidData1 = 0b10
	pidData2 = 0b01
	pidSetup = 0b11
	// pidMDATA aliases PID.Data2 for high-speed periodic split transfers.
	pidMDATA = pidData2
)

// Request is the upstream transfer request boundary: the host-controller
// equivalent of usb_request_t. Callers fill in the fields that describe what
// is being asked for, and the controller calls Complete exactly once.
type Request struct {
	DeviceID  uint32
	EPAddress uint8
	Length    int
	// Setup carries the 8-byte SETUP packet for control transfers; nil for
	// non-control endpoints.
	Setup *SetupData
	// SendZLP requests a zero-length packet be appended when Length is a
	// non-zero multiple of the endpoint's max packet size.
	SendZLP bool
	// Buffer is the DMA-addressable payload area: written by the controller
	// for IN transfers, read from for OUT transfers.
	Buffer []byte

	// Complete is invoked exactly once with the outcome.
	Complete func(status Status, actualLength int)
}

// transferRequest is the Transfer Request Envelope (TRE): the internal unit
// that flows through the scheduler once a Request enters the core. It is
// referenced from exactly one of {endpoint pending queue, in-flight on a
// channel, root-hub pending queue, root-hub interrupt slot} at any instant;
// every container that hands off a *transferRequest removes it from its own
// bookkeeping before handing it to the next.
type transferRequest struct {
	req       *Request
	requestID uint64

	ctrlPhase    ctrlPhase
	completeSplit bool
	cSplitRetries int
	shortAttempt  bool

	nextDataToggle int

	bytesQueued      int
	totalBytesQueued int
	packetsQueued    int
	bytesTransferred int

	// setupAddr is the DMA allocation backing the 8-byte SETUP packet for
	// control transfers; freed on completion.
	setupAddr uint32

	// payloadAddr is the DMA address of req.Buffer last programmed into
	// HCDMA, used to flush/invalidate the right range on completion.
	payloadAddr uint32

	// channel is the host channel this TRE currently occupies, or -1.
	channel int
}

func isControlRequest(tr *transferRequest) bool {
	return tr.req.EPAddress&0x0f == 0
}

func isRootHubRequest(tr *transferRequest) bool {
	return tr.req.DeviceID == rootHubDeviceID
}

// requestCache is the bounded free-list of transferRequest envelopes (C2),
// avoiding allocation churn on the hot completion path. Grounded on the
// teacher's dma allocator idiom (one mutex, explicit bound) generalized from
// bytes to *transferRequest.
type requestCache struct {
	mu    sync.Mutex
	free  []*transferRequest
	count int
}

func newRequestCache() *requestCache {
	return &requestCache{}
}

// get returns a free transferRequest, allocating a new one if the cache is
// empty.
func (c *requestCache) get() *transferRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.free)
	if n == 0 {
		return &transferRequest{channel: -1}
	}

	tr := c.free[n-1]
	c.free = c.free[:n-1]
	c.count--

	*tr = transferRequest{channel: -1}

	return tr
}

// put returns tr to the cache, discarding it instead if the cache is already
// at freeRequestCacheThreshold (property P2).
func (c *requestCache) put(tr *transferRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.count >= freeRequestCacheThreshold {
		return
	}

	c.free = append(c.free, tr)
	c.count++
}

// pendingQueue is a slice-backed FIFO of transferRequests, replacing the
// original's intrusive linked list (REDESIGN FLAG 2). It has no capacity
// limit: pushBack and pushFront always grow the slice. pushBack appends a
// new arrival; pushFront requeues a retried TRE ahead of later submissions,
// preserving the ordering the upstream observes (property P1).
type pendingQueue struct {
	items []*transferRequest
}

func (q *pendingQueue) pushBack(tr *transferRequest) {
	q.items = append(q.items, tr)
}

func (q *pendingQueue) pushFront(tr *transferRequest) {
	q.items = append([]*transferRequest{tr}, q.items...)
}

func (q *pendingQueue) popFront() *transferRequest {
	if len(q.items) == 0 {
		return nil
	}

	tr := q.items[0]
	q.items = q.items[1:]

	return tr
}

func (q *pendingQueue) empty() bool {
	return len(q.items) == 0
}
