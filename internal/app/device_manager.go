package app

import (
	"fmt"
	"io"

	"github.com/emmett/ears/internal/audio"
)

// DeviceManager reports the capture devices ears can see.
// There is no selection: capture always opens the default device.
type DeviceManager struct {
	list func() ([]audio.DeviceInfo, error)
}

// NewDeviceManager creates a new DeviceManager instance
func NewDeviceManager() *DeviceManager {
	return &DeviceManager{list: audio.ListDevices}
}

// ListDevices writes all available audio input devices to w
func (dm *DeviceManager) ListDevices(w io.Writer) error {
	devices, err := dm.list()
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	if len(devices) == 0 {
		fmt.Fprintln(w, "No audio capture devices found.")
		return fmt.Errorf("no devices found")
	}

	fmt.Fprintf(w, "Found %d capture device(s):\n\n", len(devices))

	for i, device := range devices {
		marker := ""
		if device.IsDefault {
			marker = " [DEFAULT]"
		}
		fmt.Fprintf(w, "%d. %s%s\n", i+1, device.Name, marker)
		fmt.Fprintf(w, "   ID: %s\n", device.ID)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "ears always captures from the default device.")
	return nil
}

// DefaultDeviceName names the device capture will open, for status lines
func (dm *DeviceManager) DefaultDeviceName() string {
	devices, err := dm.list()
	if err != nil {
		return "default input device"
	}
	device, err := audio.PickDefault(devices)
	if err != nil {
		return "default input device"
	}
	return device.Name
}
