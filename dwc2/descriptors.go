package dwc2

import (
	"bytes"
	"encoding/binary"
)

// Endpoint directions, encoded in bit 7 of an endpoint address.
const (
	DirOut = 0
	DirIn  = 1
)

// Endpoint transfer types (p268, Table 9-13 bmAttributes, USB2.0).
const (
	EndpointControl     = 0
	EndpointIsochronous = 1
	EndpointBulk        = 2
	EndpointInterrupt   = 3
)

// Device speeds.
type Speed int

const (
	SpeedLow Speed = iota
	SpeedFull
	SpeedHigh
)

func (s Speed) String() string {
	switch s {
	case SpeedLow:
		return "low"
	case SpeedFull:
		return "full"
	case SpeedHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Standard request codes (p279, Table 9-4, USB2.0).
const (
	ReqGetStatus        = 0
	ReqClearFeature     = 1
	ReqSetFeature       = 3
	ReqSetAddress       = 5
	ReqGetDescriptor    = 6
	ReqSetDescriptor    = 7
	ReqGetConfiguration = 8
	ReqSetConfiguration = 9
)

// bmRequestType type field (p248, Table 9-2, USB2.0).
const (
	ReqTypeMask     = 0x60
	ReqTypeStandard = 0x00
	ReqTypeClass    = 0x20
)

// Descriptor types (p279, Table 9-5, USB2.0).
const (
	DescDevice    = 1
	DescConfig    = 2
	DescString    = 3
	DescInterface = 4
	DescEndpoint  = 5
)

// Hub class descriptor type and feature selectors (USB2.0 §11.24).
const (
	DescHub = 0x29

	FeaturePortConnection  = 0
	FeaturePortEnable      = 1
	FeaturePortSuspend     = 2
	FeaturePortOverCurrent = 3
	FeaturePortReset       = 4
	FeaturePortPower       = 8

	FeatureCPortConnection  = 16
	FeatureCPortEnable      = 17
	FeatureCPortSuspend     = 18
	FeatureCPortOverCurrent = 19
	FeatureCPortReset       = 20
)

// Port status/change bits, hub-class encoding (USB2.0 §11.24.2.7).
const (
	PortConnection  = 1 << 0
	PortEnable      = 1 << 1
	PortSuspend     = 1 << 2
	PortOverCurrent = 1 << 3
	PortReset       = 1 << 4
	PortPower       = 1 << 8

	CPortConnection  = 1 << 0
	CPortEnable      = 1 << 1
	CPortSuspend     = 1 << 2
	CPortOverCurrent = 1 << 3
	CPortReset       = 1 << 4
)

// SetupData is the 8-byte control transfer setup packet
// (p276, Table 9-2, USB2.0).
type SetupData struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
}

// Bytes serializes the setup packet in the little-endian wire format
// required by the device.
func (s *SetupData) Bytes() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, s)
	return buf.Bytes()
}

// deviceDescriptor implements p290, Table 9-8, USB2.0.
type deviceDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	BcdUSB            uint16
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize0    uint8
	VendorID          uint16
	ProductID         uint16
	BcdDevice         uint16
	Manufacturer      uint8
	Product           uint8
	SerialNumber      uint8
	NumConfigurations uint8
}

func (d *deviceDescriptor) Bytes() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, d)
	return buf.Bytes()
}

// configDescriptor implements p293/296/297, Tables 9-10/9-12/9-13, USB2.0,
// fused into the single interface/endpoint block the root hub exposes.
type configDescriptor struct {
	// configuration
	CLength             uint8
	CDescriptorType      uint8
	CTotalLength         uint16
	CNumInterfaces       uint8
	CConfigurationValue  uint8
	CConfiguration       uint8
	CAttributes          uint8
	CMaxPower            uint8
	// interface
	ILength            uint8
	IDescriptorType    uint8
	IInterfaceNumber   uint8
	IAlternateSetting  uint8
	INumEndpoints      uint8
	IInterfaceClass    uint8
	IInterfaceSubClass uint8
	IInterfaceProtocol uint8
	IInterface         uint8
	// endpoint
	ELength          uint8
	EDescriptorType  uint8
	EEndpointAddress uint8
	EAttributes      uint8
	EMaxPacketSize   uint16
	EInterval        uint8
}

func (d *configDescriptor) Bytes() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, d)
	return buf.Bytes()
}

// hubDescriptor implements USB2.0 §11.23.2.1, with one port and no
// power-switching delay.
type hubDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	NbrPorts          uint8
	HubCharacteristics uint16
	PowerOnToPowerGood uint8
	HubContrCurrent    uint8
	DeviceRemovable    uint8
	PortPwrCtrlMask    uint8
}

func (d *hubDescriptor) Bytes() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, d)
	return buf.Bytes()
}

// Class/vendor/product identity for the synthetic root hub, bit-exact with
// the original dwc_rh_descriptor.
const (
	rootHubVendorID  = 0x18D1
	rootHubProductID = 0xA002
	rootHubClassHub  = 0x09
)

var rootHubDeviceDescriptor = deviceDescriptor{
	Length:            18,
	DescriptorType:    DescDevice,
	BcdUSB:            0x0200,
	DeviceClass:       rootHubClassHub,
	DeviceSubClass:    0,
	DeviceProtocol:    1, // single TT
	MaxPacketSize0:    64,
	VendorID:          rootHubVendorID,
	ProductID:         rootHubProductID,
	BcdDevice:         0x0100,
	Manufacturer:      1,
	Product:           2,
	SerialNumber:      0,
	NumConfigurations: 1,
}

var rootHubConfigDescriptor = configDescriptor{
	CLength:             9,
	CDescriptorType:      DescConfig,
	CTotalLength:         25,
	CNumInterfaces:       1,
	CConfigurationValue:  1,
	CConfiguration:       0,
	CAttributes:          0xE0, // self-powered
	CMaxPower:            0,
	ILength:            9,
	IDescriptorType:    DescInterface,
	IInterfaceNumber:   0,
	IAlternateSetting:  0,
	INumEndpoints:      1,
	IInterfaceClass:    rootHubClassHub,
	IInterfaceSubClass: 0,
	IInterfaceProtocol: 0,
	IInterface:         0,
	ELength:          7,
	EDescriptorType:  DescEndpoint,
	EEndpointAddress: 0x80 | 1, // IN 1
	EAttributes:      EndpointInterrupt,
	EMaxPacketSize:   4,
	EInterval:        12,
}

// root hub string table: language list, manufacturer, product.
var rootHubStrings = [][]byte{
	{4, DescString, 0x09, 0x04}, // English (US), 0x0409
	utf16String("Zircon"),
	utf16String("USB 2.0 Root Hub"),
}

func utf16String(s string) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(0) // length placeholder
	buf.WriteByte(DescString)

	for _, r := range s {
		binary.Write(buf, binary.LittleEndian, uint16(r))
	}

	out := buf.Bytes()
	out[0] = uint8(len(out))

	return out
}
