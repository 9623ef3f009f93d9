package wire

import (
	"fmt"
	"strings"
)

// Control commands carried in TypeControl frames as single-line text
// records: the command word, optionally followed by space-separated integer
// arguments (e.g. "set_resolution 1280 720"). The engine transports these
// verbatim; only request_keyframe and disconnect are interpreted by the
// session itself.
const (
	CmdRequestKeyframe = "request_keyframe"
	CmdSetBitrate      = "set_bitrate"
	CmdSetFramerate    = "set_framerate"
	CmdSetResolution   = "set_resolution"
	CmdPause           = "pause"
	CmdResume          = "resume"
	CmdDisconnect      = "disconnect"
)

var knownCommands = map[string]bool{
	CmdRequestKeyframe: true,
	CmdSetBitrate:      true,
	CmdSetFramerate:    true,
	CmdSetResolution:   true,
	CmdPause:           true,
	CmdResume:          true,
	CmdDisconnect:      true,
}

// Control is a parsed control-frame payload.
type Control struct {
	Command string
	Args    []string
}

// EncodeControl renders a control record for transmission.
func EncodeControl(command string, args ...string) []byte {
	if len(args) == 0 {
		return []byte(command)
	}
	return []byte(command + " " + strings.Join(args, " "))
}

// ParseControl parses a control-frame payload. Unknown commands are an
// error so garbage payloads are not silently forwarded as commands.
func ParseControl(payload []byte) (Control, error) {
	fields := strings.Fields(string(payload))
	if len(fields) == 0 {
		return Control{}, fmt.Errorf("empty control record")
	}
	if !knownCommands[fields[0]] {
		return Control{}, fmt.Errorf("unknown control command %q", fields[0])
	}
	return Control{Command: fields[0], Args: fields[1:]}, nil
}
