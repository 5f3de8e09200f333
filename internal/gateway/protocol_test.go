package gateway

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    Command
		wantErr bool
	}{
		{
			name: "open with identity",
			raw:  `{"type":"open","simulation":"zor-musteri","course_id":"c1","user_id":"u9"}`,
			want: Command{Type: CmdOpen, Simulation: "zor-musteri", CourseID: "c1", UserID: "u9"},
		},
		{
			name: "stop with auto submit",
			raw:  `{"type":"stop_capture","auto_submit":true}`,
			want: Command{Type: CmdStopCapture, AutoSubmit: true},
		},
		{
			name: "clip event",
			raw:  `{"type":"clip_event","clip_id":"clip_3","event":"ended"}`,
			want: Command{Type: CmdClipEvent, ClipID: "clip_3", Event: "ended"},
		},
		{
			name: "capture failure reason",
			raw:  `{"type":"capture_failure","reason":"permission_denied"}`,
			want: Command{Type: CmdCaptureFailure, Reason: "permission_denied"},
		},
		{
			name:    "missing type",
			raw:     `{"simulation":"zor-musteri"}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			raw:     `{"type":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseCommand([]byte(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatal("ParseCommand() succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCommand() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseCommand() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEncodeEventClipAudioIsBase64(t *testing.T) {
	t.Parallel()

	data, err := EncodeEvent(Event{
		Type:   EvtClip,
		ClipID: "clip_1",
		Audio:  []byte{0x00, 0x01, 0x02},
		MIME:   "audio/mpeg",
	})
	if err != nil {
		t.Fatalf("EncodeEvent() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	audio, ok := decoded["audio"].(string)
	if !ok || audio != "AAEC" {
		t.Errorf("audio field = %v, want base64 string AAEC", decoded["audio"])
	}
}

func TestEncodeEventOmitsEmptyFields(t *testing.T) {
	t.Parallel()

	data, err := EncodeEvent(Event{Type: EvtCleared})
	if err != nil {
		t.Fatalf("EncodeEvent() error = %v", err)
	}
	if got := string(data); got != `{"type":"cleared"}` {
		t.Errorf("EncodeEvent() = %s, want only the type field", got)
	}
}

func TestEncodeEventClearedCarriesFade(t *testing.T) {
	t.Parallel()

	data, err := EncodeEvent(Event{Type: EvtCleared, FadeMS: 400})
	if err != nil {
		t.Fatalf("EncodeEvent() error = %v", err)
	}
	if got := string(data); got != `{"type":"cleared","fade_ms":400}` {
		t.Errorf("EncodeEvent() = %s, want the fade duration on the wire", got)
	}
}

func TestEncodeEventNullScoreIsAbsent(t *testing.T) {
	t.Parallel()

	data, err := EncodeEvent(Event{Type: EvtEnded, Reply: "bitti"})
	if err != nil {
		t.Fatalf("EncodeEvent() error = %v", err)
	}
	if strings.Contains(string(data), "score") {
		t.Errorf("EncodeEvent() = %s, want no score key for a null score", data)
	}
}
