package service

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestSerializeTouch(t *testing.T) {
	pkt := SerializeTouch(ActionDown, DefaultTouchID, 100, 200, 1080, 1920)

	if len(pkt) != 32 {
		t.Fatalf("touch packet length = %d, want 32", len(pkt))
	}
	if pkt[0] != CtrlInjectTouchEvent {
		t.Errorf("message type = %d, want %d", pkt[0], CtrlInjectTouchEvent)
	}
	if pkt[1] != ActionDown {
		t.Errorf("action = %d, want %d", pkt[1], ActionDown)
	}
	if got := int64(binary.BigEndian.Uint64(pkt[2:10])); got != DefaultTouchID {
		t.Errorf("touch id = %#x, want %#x", got, DefaultTouchID)
	}
	if got := binary.BigEndian.Uint32(pkt[10:14]); got != 100 {
		t.Errorf("x = %d, want 100", got)
	}
	if got := binary.BigEndian.Uint32(pkt[14:18]); got != 200 {
		t.Errorf("y = %d, want 200", got)
	}
	if got := binary.BigEndian.Uint16(pkt[18:20]); got != 1080 {
		t.Errorf("screen width = %d, want 1080", got)
	}
	if got := binary.BigEndian.Uint16(pkt[20:22]); got != 1920 {
		t.Errorf("screen height = %d, want 1920", got)
	}
	if got := binary.BigEndian.Uint16(pkt[22:24]); got != 0xFFFF {
		t.Errorf("pressure = %#x, want 0xFFFF", got)
	}
	if got := binary.BigEndian.Uint32(pkt[24:28]); got != 1 {
		t.Errorf("action button = %d, want 1", got)
	}
	if got := binary.BigEndian.Uint32(pkt[28:32]); got != 1 {
		t.Errorf("buttons = %d, want 1", got)
	}
}

func TestSerializeTouchClampsNegative(t *testing.T) {
	pkt := SerializeTouch(ActionMove, DefaultTouchID, -5, -10, 1080, 1920)

	if got := binary.BigEndian.Uint32(pkt[10:14]); got != 0 {
		t.Errorf("x = %d, want 0 (clamped)", got)
	}
	if got := binary.BigEndian.Uint32(pkt[14:18]); got != 0 {
		t.Errorf("y = %d, want 0 (clamped)", got)
	}
}

func TestSerializeScroll(t *testing.T) {
	pkt := SerializeScroll(540, 960, 1080, 1920, 0, -3)

	if len(pkt) != 21 {
		t.Fatalf("scroll packet length = %d, want 21", len(pkt))
	}
	if pkt[0] != CtrlInjectScrollEvent {
		t.Errorf("message type = %d, want %d", pkt[0], CtrlInjectScrollEvent)
	}
	if got := binary.BigEndian.Uint32(pkt[1:5]); got != 540 {
		t.Errorf("x = %d, want 540", got)
	}
	if got := binary.BigEndian.Uint32(pkt[5:9]); got != 960 {
		t.Errorf("y = %d, want 960", got)
	}
	if got := int32(binary.BigEndian.Uint32(pkt[13:17])); got != 0 {
		t.Errorf("hScroll = %d, want 0", got)
	}
	if got := int32(binary.BigEndian.Uint32(pkt[17:21])); got != -3 {
		t.Errorf("vScroll = %d, want -3", got)
	}
}

func TestSerializeKeycode(t *testing.T) {
	pkt := SerializeKeycode(ActionDown, AKEYCODE_HOME, 0, 0)

	if len(pkt) != 14 {
		t.Fatalf("keycode packet length = %d, want 14", len(pkt))
	}
	if pkt[0] != CtrlInjectKeycode {
		t.Errorf("message type = %d, want %d", pkt[0], CtrlInjectKeycode)
	}
	if got := binary.BigEndian.Uint32(pkt[2:6]); got != AKEYCODE_HOME {
		t.Errorf("keycode = %d, want %d", got, AKEYCODE_HOME)
	}
}

func TestSerializeText(t *testing.T) {
	pkt := SerializeText("hello")

	if len(pkt) != 10 {
		t.Fatalf("text packet length = %d, want 10", len(pkt))
	}
	if pkt[0] != CtrlInjectText {
		t.Errorf("message type = %d, want %d", pkt[0], CtrlInjectText)
	}
	if got := binary.BigEndian.Uint32(pkt[1:5]); got != 5 {
		t.Errorf("length field = %d, want 5", got)
	}
	if !bytes.Equal(pkt[5:], []byte("hello")) {
		t.Errorf("payload = %q, want %q", pkt[5:], "hello")
	}
}

func TestSerializeTextTruncates(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}

	pkt := SerializeText(string(long))

	if len(pkt) != 5+300 {
		t.Fatalf("text packet length = %d, want %d", len(pkt), 5+300)
	}
	if got := binary.BigEndian.Uint32(pkt[1:5]); got != 300 {
		t.Errorf("length field = %d, want 300", got)
	}
}

func TestSerializeClipboard(t *testing.T) {
	pkt := SerializeClipboard("copy me", true, 7)

	if len(pkt) != 14+7 {
		t.Fatalf("clipboard packet length = %d, want %d", len(pkt), 14+7)
	}
	if pkt[0] != CtrlSetClipboard {
		t.Errorf("message type = %d, want %d", pkt[0], CtrlSetClipboard)
	}
	if got := binary.BigEndian.Uint64(pkt[1:9]); got != 7 {
		t.Errorf("sequence = %d, want 7", got)
	}
	if pkt[9] != 1 {
		t.Errorf("paste flag = %d, want 1", pkt[9])
	}
	if !bytes.Equal(pkt[14:], []byte("copy me")) {
		t.Errorf("payload = %q, want %q", pkt[14:], "copy me")
	}
}

func TestSerializeBackOrScreenOn(t *testing.T) {
	pkt := SerializeBackOrScreenOn(ActionDown)
	if len(pkt) != 2 || pkt[0] != CtrlBackOrScreenOn || pkt[1] != ActionDown {
		t.Errorf("unexpected packet %v", pkt)
	}
}
