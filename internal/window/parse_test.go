package window

import (
	"errors"
	"testing"
	"time"
)

func TestParseHyprland(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    hyprWindow
		wantErr error
	}{
		{
			name: "window",
			in:   `{"address":"0x55","class":"firefox","title":"GitHub - Mozilla Firefox","pid":4242,"workspace":{"id":1}}`,
			want: hyprWindow{Class: "firefox", Title: "GitHub - Mozilla Firefox", PID: 4242},
		},
		{name: "empty object", in: "{}", wantErr: ErrNoWindow},
		{name: "empty output", in: "\n", wantErr: ErrNoWindow},
		{name: "invalid text", in: "Invalid", wantErr: ErrNoWindow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseHyprland([]byte(tt.in))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseHyprland: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}

	if _, err := parseHyprland([]byte(`{"class":`)); err == nil || errors.Is(err, ErrNoWindow) {
		t.Errorf("truncated JSON err = %v, want parse error", err)
	}
}

func TestParseFocusedWindow(t *testing.T) {
	w, err := parseFocusedWindow(`{"title":"main.go - Visual Studio Code","wm_class":"Code","pid":99,"focus":true}`)
	if err != nil {
		t.Fatalf("parseFocusedWindow: %v", err)
	}
	if w.Title != "main.go - Visual Studio Code" || w.WmClass != "Code" || w.PID != 99 {
		t.Errorf("got %+v", w)
	}

	if _, err := parseFocusedWindow(""); !errors.Is(err, ErrNoWindow) {
		t.Errorf("empty err = %v, want ErrNoWindow", err)
	}
	if _, err := parseFocusedWindow("nope"); err == nil {
		t.Error("expected parse error")
	}
}

func TestParseXdotool(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		wantTitle string
		wantPID   int32
		wantErr   bool
	}{
		{name: "title and pid", in: "Terminal - bash\n1234\n", wantTitle: "Terminal - bash", wantPID: 1234},
		{name: "no pid", in: "Desktop\n", wantTitle: "Desktop"},
		{name: "bad pid", in: "Desktop\nx\n", wantTitle: "Desktop"},
		{name: "empty", in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, pid, err := parseXdotool([]byte(tt.in))
			if tt.wantErr {
				if !errors.Is(err, ErrNoWindow) {
					t.Fatalf("err = %v, want ErrNoWindow", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseXdotool: %v", err)
			}
			if title != tt.wantTitle || pid != tt.wantPID {
				t.Errorf("got (%q, %d), want (%q, %d)", title, pid, tt.wantTitle, tt.wantPID)
			}
		})
	}
}

func TestParseOSAScript(t *testing.T) {
	proc, title, err := parseOSAScript([]byte("Safari\nApple - Start\n"))
	if err != nil || proc != "Safari" || title != "Apple - Start" {
		t.Errorf("got (%q, %q, %v)", proc, title, err)
	}

	proc, title, err = parseOSAScript([]byte("Finder\n\n"))
	if err != nil || proc != "Finder" || title != "" {
		t.Errorf("no window title: got (%q, %q, %v)", proc, title, err)
	}

	if _, _, err := parseOSAScript([]byte("\n")); !errors.Is(err, ErrNoWindow) {
		t.Errorf("empty err = %v, want ErrNoWindow", err)
	}
}

func TestParseMillis(t *testing.T) {
	got, err := parseMillis([]byte("61500\n"))
	if err != nil || got != 61500*time.Millisecond {
		t.Errorf("parseMillis = %v, %v", got, err)
	}
	if _, err := parseMillis([]byte("soon")); err == nil {
		t.Error("expected error")
	}
}

func TestParseIoregIdle(t *testing.T) {
	out := []byte(`    | |   "HIDIdleTime" = 5000000000
    | |   "HIDKeyboardModifierMappingPairs" = ()`)
	got, err := parseIoregIdle(out)
	if err != nil || got != 5*time.Second {
		t.Errorf("parseIoregIdle = %v, %v", got, err)
	}
	if _, err := parseIoregIdle([]byte("nothing")); err == nil {
		t.Error("expected error")
	}
}
