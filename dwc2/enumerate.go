package dwc2

import (
	"fmt"
	"time"
)

// setAddressRecoveryTime is the mandatory quiet period after SET_ADDRESS
// before the device may be addressed again (USB 2.0 §9.2.6.3).
const setAddressRecoveryTime = 10 * time.Millisecond

// defaultEP0MaxPacketSize is used for device 0's EP0 before the real
// bMaxPacketSize0 is known.
const defaultEP0MaxPacketSize = 8

// HubDeviceAdded implements the device-added bootstrap (C9): on a new
// device notification, it synchronously issues GET_DESCRIPTOR(8) and
// SET_ADDRESS through the public request-queue path exactly like external
// traffic — this is what pins down the queue's contract, per spec.md §4.6.
func (c *Controller) HubDeviceAdded(hubAddress uint32, port uint32, speed Speed) error {
	c.devMu.Lock()
	dev0 := c.devices[rootHubDeviceID]
	if dev0 == nil {
		dev0 = &device{address: rootHubDeviceID}
		c.devices[rootHubDeviceID] = dev0
	}
	c.devMu.Unlock()

	dev0.mu.Lock()
	dev0.hubAddress = hubAddress
	dev0.hubPort = port
	dev0.speed = speed

	var ep0 *endpoint
	for _, ep := range dev0.endpoints {
		if ep.address == 0 {
			ep0 = ep
			break
		}
	}
	if ep0 == nil {
		ep0 = newEndpoint(c, rootHubDeviceID, 0, defaultEP0MaxPacketSize, EndpointControl, 0)
		dev0.endpoints = append(dev0.endpoints, ep0)
		ep0.start()
	}
	dev0.mu.Unlock()

	descBuf := make([]byte, 8)
	if err := c.syncRequest(rootHubDeviceID, 0, &SetupData{
		RequestType: 0x80,
		Request:     ReqGetDescriptor,
		Value:       uint16(DescDevice) << 8,
		Length:      8,
	}, descBuf); err != nil {
		return err
	}

	maxPacketSize0 := int(descBuf[7])

	dev0.mu.Lock()
	ep0.maxPacketSize = maxPacketSize0
	dev0.mu.Unlock()

	c.devMu.Lock()
	addr := c.nextDeviceAddress + 1
	c.devMu.Unlock()

	if err := c.syncRequest(rootHubDeviceID, 0, &SetupData{
		RequestType: 0x00,
		Request:     ReqSetAddress,
		Value:       uint16(addr),
	}, nil); err != nil {
		return err
	}

	time.Sleep(setAddressRecoveryTime)

	newDev := &device{
		address:    addr,
		speed:      speed,
		hubAddress: hubAddress,
		hubPort:    port,
	}
	newEP0 := newEndpoint(c, addr, 0, maxPacketSize0, EndpointControl, 0)
	newDev.endpoints = append(newDev.endpoints, newEP0)

	c.devMu.Lock()
	c.devices[addr] = newDev
	c.nextDeviceAddress = addr
	c.devMu.Unlock()

	newEP0.start()

	if c.bus != nil {
		c.bus.AddDevice(addr, hubAddress, speed)
	}

	return nil
}

// syncRequest submits a control request through the public RequestQueue path
// and blocks for its completion, used by the enumeration bootstrap and
// nowhere else in the core.
func (c *Controller) syncRequest(deviceID uint32, epAddress uint8, setup *SetupData, buf []byte) error {
	done := make(chan Status, 1)

	req := &Request{
		DeviceID:  deviceID,
		EPAddress: epAddress,
		Length:    len(buf),
		Setup:     setup,
		Buffer:    buf,
		Complete: func(status Status, actualLength int) {
			done <- status
		},
	}

	c.RequestQueue(req)

	status := <-done
	if status != StatusOK {
		return fmt.Errorf("dwc2: enumeration request failed: %s", status)
	}

	return nil
}
