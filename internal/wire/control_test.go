package wire

import "testing"

func TestControlRoundTrip(t *testing.T) {
	t.Parallel()
	payload := EncodeControl(CmdSetResolution, "1280", "720")
	c, err := ParseControl(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Command != CmdSetResolution {
		t.Errorf("command: got %q", c.Command)
	}
	if len(c.Args) != 2 || c.Args[0] != "1280" || c.Args[1] != "720" {
		t.Errorf("args: got %v", c.Args)
	}
}

func TestControlNoArgs(t *testing.T) {
	t.Parallel()
	c, err := ParseControl(EncodeControl(CmdRequestKeyframe))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Command != CmdRequestKeyframe || len(c.Args) != 0 {
		t.Errorf("got %+v", c)
	}
}

func TestControlRejectsUnknown(t *testing.T) {
	t.Parallel()
	if _, err := ParseControl([]byte("format_disk now")); err == nil {
		t.Error("unknown command must not parse")
	}
	if _, err := ParseControl([]byte("   ")); err == nil {
		t.Error("blank record must not parse")
	}
}
