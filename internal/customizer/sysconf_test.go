package customizer

import (
	"errors"
	"testing"
)

func TestSysconfSetPreservesUnrelatedLines(t *testing.T) {
	orig := "# boot configuration\nconsole=ttyS0\nhostname=old\n\nquiet=1\n"
	conf := parseSysconf([]byte(orig))
	conf.set("hostname", "new")
	conf.set("timezone", "UTC")

	got := string(conf.serialize())
	want := "# boot configuration\nconsole=ttyS0\nhostname=new\n\nquiet=1\ntimezone=UTC\n"
	if got != want {
		t.Errorf("serialize:\n got %q\nwant %q", got, want)
	}
}

func TestSysconfSetSkipsComments(t *testing.T) {
	conf := parseSysconf([]byte("# hostname=commented\n"))
	conf.set("hostname", "real")

	got := string(conf.serialize())
	want := "# hostname=commented\nhostname=real\n"
	if got != want {
		t.Errorf("serialize:\n got %q\nwant %q", got, want)
	}
}

func TestSysconfEmpty(t *testing.T) {
	conf := parseSysconf(nil)
	if out := conf.serialize(); out != nil {
		t.Errorf("serialize of empty config = %q, want nil", out)
	}
	conf.set("keymap", "us")
	if got, want := string(conf.serialize()), "keymap=us\n"; got != want {
		t.Errorf("serialize = %q, want %q", got, want)
	}
}

func TestCustomizationValidate(t *testing.T) {
	tests := []struct {
		name    string
		c       Customization
		wantErr bool
	}{
		{"empty", Customization{}, false},
		{"hostname only", Customization{Hostname: "h"}, false},
		{"full user", Customization{User: &UserCredentials{Name: "a", Password: "b"}}, false},
		{"user missing password", Customization{User: &UserCredentials{Name: "a"}}, true},
		{"user missing name", Customization{User: &UserCredentials{Password: "b"}}, true},
		{"full wifi", Customization{WiFi: &WirelessNetwork{SSID: "s", PSK: "p"}}, false},
		{"wifi missing psk", Customization{WiFi: &WirelessNetwork{SSID: "s"}}, true},
		{"wifi missing ssid", Customization{WiFi: &WirelessNetwork{PSK: "p"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidCustomization) {
				t.Errorf("error %v does not wrap ErrInvalidCustomization", err)
			}
		})
	}
}

func TestCustomizationIsEmpty(t *testing.T) {
	if !(&Customization{}).IsEmpty() {
		t.Error("zero customization should be empty")
	}
	if (&Customization{Keymap: "us"}).IsEmpty() {
		t.Error("customization with keymap should not be empty")
	}
}
