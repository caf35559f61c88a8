//go:build windows

package devices

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

func list() ([]Destination, error) {
	disks, err := queryDisks()
	if err != nil {
		return nil, err
	}
	letters, err := queryDriveLetters()
	if err != nil {
		return nil, err
	}

	var dests []Destination
	for _, d := range disks {
		if d.IsBoot || d.IsSystem {
			continue
		}
		bus := d.BusType.Name()
		dests = append(dests, Destination{
			Path:        fmt.Sprintf(`\\.\PhysicalDrive%d`, d.Number),
			Name:        d.FriendlyName,
			Size:        d.Size,
			BlockSize:   d.LogicalSectorSize,
			Removable:   bus == "usb" || bus == "sd" || bus == "mmc",
			Mountpoints: letters[d.Number],
			Bus:         bus,
		})
	}
	return dests, nil
}

type winDisk struct {
	Number            int     `json:"Number"`
	FriendlyName      string  `json:"FriendlyName"`
	Size              int64   `json:"Size"`
	LogicalSectorSize int     `json:"LogicalSectorSize"`
	BusType           busType `json:"BusType"`
	IsBoot            bool    `json:"IsBoot"`
	IsSystem          bool    `json:"IsSystem"`
}

// busType absorbs both spellings ConvertTo-Json produces for the storage
// bus: the MSFT_Disk numeric enum or its display string.
type busType struct {
	name string
}

var busTypeNames = map[int]string{
	1: "scsi", 3: "ata", 7: "usb", 8: "raid", 9: "iscsi",
	10: "sas", 11: "sata", 12: "sd", 13: "mmc", 17: "nvme",
}

func (b *busType) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		b.name = busTypeNames[n]
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b.name = lowerASCII(s)
	return nil
}

func (b busType) Name() string { return b.name }

func lowerASCII(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c >= 'A' && c <= 'Z' {
			out[i] = c + 32
		}
	}
	return string(out)
}

func queryDisks() ([]winDisk, error) {
	out, err := powershell(`Get-Disk | Select-Object Number,FriendlyName,Size,LogicalSectorSize,BusType,IsBoot,IsSystem | ConvertTo-Json`)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate disks: %w", err)
	}
	var disks []winDisk
	if err := unmarshalMaybeArray(out, &disks); err != nil {
		return nil, fmt.Errorf("failed to parse disk list: %w", err)
	}
	return disks, nil
}

// queryDriveLetters maps disk numbers to the volumes blockdev must lock
// before the raw write.
func queryDriveLetters() (map[int][]string, error) {
	out, err := powershell(`Get-Partition | Select-Object DiskNumber,DriveLetter | ConvertTo-Json`)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate partitions: %w", err)
	}
	var parts []struct {
		DiskNumber  int         `json:"DiskNumber"`
		DriveLetter driveLetter `json:"DriveLetter"`
	}
	if err := unmarshalMaybeArray(out, &parts); err != nil {
		return nil, fmt.Errorf("failed to parse partition list: %w", err)
	}

	letters := make(map[int][]string)
	for _, p := range parts {
		if p.DriveLetter.c == 0 {
			continue
		}
		letters[p.DiskNumber] = append(letters[p.DiskNumber], string(p.DriveLetter.c)+":")
	}
	return letters, nil
}

// driveLetter absorbs both JSON spellings of a char property: a one-letter
// string or its numeric code point. Partitions without a letter come
// through as NUL.
type driveLetter struct {
	c byte
}

func (d *driveLetter) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		if n > 0 && n < 128 {
			d.c = byte(n)
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s != "" && s[0] >= 'A' {
		d.c = s[0]
	}
	return nil
}

// unmarshalMaybeArray copes with ConvertTo-Json emitting a bare object when
// the pipeline yields a single element.
func unmarshalMaybeArray(data []byte, v any) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		data = append(append([]byte{'['}, data...), ']')
	}
	return json.Unmarshal(data, v)
}

func powershell(script string) ([]byte, error) {
	cmd := exec.Command("powershell.exe", "-NoProfile", "-NonInteractive", "-Command", script)
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			return nil, fmt.Errorf("powershell exited %s: %s", strconv.Itoa(ee.ExitCode()), bytes.TrimSpace(ee.Stderr))
		}
		return nil, err
	}
	return out, nil
}
