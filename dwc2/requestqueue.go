package dwc2

// RequestQueue is the public request_queue entry (C8): it wraps req in a
// TRE from the free cache and routes it to the root-hub queue or the
// target endpoint's pending queue based on device id.
func (c *Controller) RequestQueue(req *Request) {
	if req.Length > c.GetMaxTransferSize(req.DeviceID, req.EPAddress) {
		if req.Complete != nil {
			req.Complete(StatusInvalidArgs, 0)
		}
		return
	}

	tr := c.cache.get()
	if tr == nil {
		if req.Complete != nil {
			req.Complete(StatusNoMemory, 0)
		}
		return
	}

	tr.req = req
	tr.requestID = c.nextRequestID()

	if req.DeviceID == rootHubDeviceID {
		// Both control requests to EP0 and interrupt-in polls of the status
		// pipe are routed to the single root-hub worker, which holds the
		// one-slot intrReq rendezvous for the latter.
		c.rh.queue(tr)
		return
	}

	dev := c.deviceByID(req.DeviceID)
	if dev == nil {
		c.completeTR(tr, StatusInvalidArgs, 0)
		return
	}

	ep := dev.endpointByAddress(req.EPAddress)
	if ep == nil {
		c.completeTR(tr, StatusInvalidArgs, 0)
		return
	}

	ep.queue(tr)
}

// SetBusInterface wires (or clears) the upstream bus collaborator. Setting
// it also announces the root hub as device 0 at high speed, matching
// spec.md §6.
func (c *Controller) SetBusInterface(bus BusInterface) {
	c.bus = bus

	if bus != nil {
		bus.AddDevice(rootHubDeviceID, 0, SpeedHigh)
	}
}

// GetMaxDeviceCount returns the size of the device address arena.
func (c *Controller) GetMaxDeviceCount() int {
	return MaxDeviceCount
}

// EnableEndpoint creates (or, trivially, accepts) an endpoint. Disabling an
// already-enabled endpoint is not supported, matching spec.md §6; device 0
// always succeeds immediately since its EP0 is managed by the enumeration
// bootstrap.
func (c *Controller) EnableEndpoint(deviceID uint32, epAddress uint8, maxPacketSize int, epType int, interval uint8, enable bool) error {
	if !enable {
		return ErrNotSupported
	}

	if deviceID == rootHubDeviceID {
		return nil
	}

	dev := c.deviceByID(deviceID)
	if dev == nil {
		return ErrUnknownDevice
	}

	dev.mu.Lock()
	defer dev.mu.Unlock()

	for _, ep := range dev.endpoints {
		if ep.address == epAddress {
			return nil
		}
	}

	ep := newEndpoint(c, deviceID, epAddress, maxPacketSize, epType, interval)
	dev.endpoints = append(dev.endpoints, ep)
	ep.start()

	return nil
}

// GetCurrentFrame is a documented gap: the original returns an integer 0 as
// a frame number, which is almost certainly a stub rather than a real
// implementation. This port keeps it unimplemented rather than inventing a
// frame counter the spec never described.
func (c *Controller) GetCurrentFrame() (uint32, error) {
	return 0, ErrNotSupported
}

// ConfigureHub is a no-op that always succeeds: external hub topology
// beyond the single synthetic root hub is out of scope.
func (c *Controller) ConfigureHub(deviceID uint32, speed Speed) error {
	return nil
}

// HubDeviceRemoved is a documented gap: device removal has no wiring in
// this core.
func (c *Controller) HubDeviceRemoved(hubAddress uint32, port uint32) error {
	return ErrNotSupported
}

// ResetEndpoint is unsupported, matching spec.md §6.
func (c *Controller) ResetEndpoint(deviceID uint32, epAddress uint8) error {
	return ErrNotSupported
}

// GetMaxTransferSize returns one page: transfers are limited to a single
// page until scatter-gather support is implemented (out of scope).
func (c *Controller) GetMaxTransferSize(deviceID uint32, epAddress uint8) int {
	return maxTransferSize
}

// CancelAll is unsupported, matching spec.md §6.
func (c *Controller) CancelAll(deviceID uint32, epAddress uint8) error {
	return ErrNotSupported
}
