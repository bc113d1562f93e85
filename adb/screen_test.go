package adb

import "testing"

func TestParseScreenInfo(t *testing.T) {
	tests := []struct {
		name        string
		sizeOut     string
		rotationOut string
		wantW       int
		wantH       int
		wantRot     int
	}{
		{
			name:        "portrait",
			sizeOut:     "Physical size: 1080x1920",
			rotationOut: "SurfaceOrientation: 0",
			wantW:       1080, wantH: 1920, wantRot: 0,
		},
		{
			name:        "landscape 90 swaps dimensions",
			sizeOut:     "Physical size: 1080x1920",
			rotationOut: "SurfaceOrientation: 1",
			wantW:       1920, wantH: 1080, wantRot: 90,
		},
		{
			name:        "upside down 180 keeps dimensions",
			sizeOut:     "Physical size: 1080x1920",
			rotationOut: "SurfaceOrientation: 2",
			wantW:       1080, wantH: 1920, wantRot: 180,
		},
		{
			name:        "landscape 270 swaps dimensions",
			sizeOut:     "Physical size: 1080x1920",
			rotationOut: "SurfaceOrientation: 3",
			wantW:       1920, wantH: 1080, wantRot: 270,
		},
		{
			name:        "override size wins over physical",
			sizeOut:     "Physical size: 1440x2560\nOverride size: 1080x1920",
			rotationOut: "SurfaceOrientation: 0",
			wantW:       1080, wantH: 1920, wantRot: 0,
		},
		{
			name:        "dumpsys display rotation format",
			sizeOut:     "Physical size: 720x1280",
			rotationOut: "    mDisplayInfo=DisplayInfo{..., rotation=1, ...}",
			wantW:       1280, wantH: 720, wantRot: 90,
		},
		{
			name:        "missing rotation defaults to 0",
			sizeOut:     "Physical size: 1080x1920",
			rotationOut: "",
			wantW:       1080, wantH: 1920, wantRot: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := ParseScreenInfo(tt.sizeOut, tt.rotationOut)
			if err != nil {
				t.Fatalf("ParseScreenInfo() error: %v", err)
			}
			if info.Width != tt.wantW || info.Height != tt.wantH || info.Rotation != tt.wantRot {
				t.Errorf("got %dx%d@%d, want %dx%d@%d",
					info.Width, info.Height, info.Rotation, tt.wantW, tt.wantH, tt.wantRot)
			}
		})
	}
}

func TestParseScreenInfoInvalid(t *testing.T) {
	if _, err := ParseScreenInfo("no size here", ""); err == nil {
		t.Error("expected error for unparseable size output")
	}
}

func TestParseRotation(t *testing.T) {
	tests := []struct {
		out  string
		want int
	}{
		{"SurfaceOrientation: 0", 0},
		{"SurfaceOrientation: 1", 90},
		{"SurfaceOrientation: 2", 180},
		{"SurfaceOrientation: 3", 270},
		{"rotation=3", 270},
		{"rotation=5", 90}, // wraps modulo 4
		{"garbage", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := ParseRotation(tt.out); got != tt.want {
			t.Errorf("ParseRotation(%q) = %d, want %d", tt.out, got, tt.want)
		}
	}
}

func TestParseDensity(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    int
		wantErr bool
	}{
		{"physical only", "Physical density: 420", 420, false},
		{"override wins", "Physical density: 420\nOverride density: 360", 360, false},
		{"no match", "nothing useful", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDensity(tt.out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDensity() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDensity() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseCurrentActivity(t *testing.T) {
	out := "  mResumedActivity: ActivityRecord{af1b2c3 u0 com.android.settings/.Settings t42}"
	if got := ParseCurrentActivity(out); got != "com.android.settings/.Settings" {
		t.Errorf("ParseCurrentActivity() = %q", got)
	}

	if got := ParseCurrentActivity("no activity lines here"); got != "" {
		t.Errorf("expected empty result, got %q", got)
	}

	// Lines without the activity markers are skipped.
	out = "  someOtherField: com.foo/.Bar\n  mFocusedActivity: ActivityRecord{x u0 com.example.app/.MainActivity t7}"
	if got := ParseCurrentActivity(out); got != "com.example.app/.MainActivity" {
		t.Errorf("ParseCurrentActivity() = %q", got)
	}
}
