package service

import (
	"encoding/binary"
)

// Control message types (scrcpy server protocol)
const (
	CtrlInjectKeycode     = 0
	CtrlInjectText        = 1
	CtrlInjectTouchEvent  = 2
	CtrlInjectScrollEvent = 3
	CtrlBackOrScreenOn    = 4
	CtrlSetClipboard      = 9
)

// Touch actions (MotionEvent)
const (
	ActionDown = 0
	ActionUp   = 1
	ActionMove = 2
)

// Virtual pointer id used for single-finger injection. Passing distinct
// ids emulates multi-finger touch.
const DefaultTouchID int64 = 0x1234567887654321

// Common Android keycodes
const (
	AKEYCODE_HOME        = 3
	AKEYCODE_BACK        = 4
	AKEYCODE_DPAD_UP     = 19
	AKEYCODE_DPAD_DOWN   = 20
	AKEYCODE_DPAD_LEFT   = 21
	AKEYCODE_DPAD_RIGHT  = 22
	AKEYCODE_VOLUME_UP   = 24
	AKEYCODE_VOLUME_DOWN = 25
	AKEYCODE_TAB         = 61
	AKEYCODE_SPACE       = 62
	AKEYCODE_ENTER       = 66
	AKEYCODE_DEL         = 67 // Backspace
	AKEYCODE_ESCAPE      = 111
	AKEYCODE_FORWARD_DEL = 112 // Delete
	AKEYCODE_WAKEUP      = 224
)

// Max text length accepted by the server for a text injection message.
const injectTextMaxLength = 300

// SerializeTouch builds a touch injection packet. All fields big-endian:
// [type:1] [action:1] [touchId:8] [x:4] [y:4] [screenW:2] [screenH:2]
// [pressure:2=0xFFFF] [actionButton:4=1] [buttons:4=1] = 32 bytes.
// Negative coordinates are clamped to 0 before encoding.
func SerializeTouch(action byte, touchID int64, x, y int, screenW, screenH uint16) []byte {
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}

	buf := make([]byte, 32)
	buf[0] = CtrlInjectTouchEvent
	buf[1] = action
	binary.BigEndian.PutUint64(buf[2:10], uint64(touchID))
	binary.BigEndian.PutUint32(buf[10:14], uint32(int32(x)))
	binary.BigEndian.PutUint32(buf[14:18], uint32(int32(y)))
	binary.BigEndian.PutUint16(buf[18:20], screenW)
	binary.BigEndian.PutUint16(buf[20:22], screenH)
	binary.BigEndian.PutUint16(buf[22:24], 0xFFFF) // pressure
	binary.BigEndian.PutUint32(buf[24:28], 1)      // action button
	binary.BigEndian.PutUint32(buf[28:32], 1)      // buttons
	return buf
}

// SerializeScroll builds a scroll injection packet:
// [type:1] [x:4] [y:4] [screenW:2] [screenH:2] [hScroll:4] [vScroll:4]
// = 21 bytes, big-endian. Coordinates are clamped to 0.
func SerializeScroll(x, y int, screenW, screenH uint16, hScroll, vScroll int32) []byte {
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}

	buf := make([]byte, 21)
	buf[0] = CtrlInjectScrollEvent
	binary.BigEndian.PutUint32(buf[1:5], uint32(int32(x)))
	binary.BigEndian.PutUint32(buf[5:9], uint32(int32(y)))
	binary.BigEndian.PutUint16(buf[9:11], screenW)
	binary.BigEndian.PutUint16(buf[11:13], screenH)
	binary.BigEndian.PutUint32(buf[13:17], uint32(hScroll))
	binary.BigEndian.PutUint32(buf[17:21], uint32(vScroll))
	return buf
}

// SerializeKeycode builds a key injection packet:
// [type:1] [action:1] [keycode:4] [repeat:4] [metastate:4] = 14 bytes.
func SerializeKeycode(action, keycode, repeat, metastate int) []byte {
	buf := make([]byte, 14)
	buf[0] = CtrlInjectKeycode
	buf[1] = byte(action)
	binary.BigEndian.PutUint32(buf[2:6], uint32(keycode))
	binary.BigEndian.PutUint32(buf[6:10], uint32(repeat))
	binary.BigEndian.PutUint32(buf[10:14], uint32(metastate))
	return buf
}

// SerializeText builds a text injection packet:
// [type:1] [length:4] [text:N] = 5+N bytes. Text over the server's
// 300-byte limit is truncated.
func SerializeText(text string) []byte {
	textBytes := []byte(text)
	if len(textBytes) > injectTextMaxLength {
		textBytes = textBytes[:injectTextMaxLength]
	}

	buf := make([]byte, 5+len(textBytes))
	buf[0] = CtrlInjectText
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(textBytes)))
	copy(buf[5:], textBytes)
	return buf
}

// SerializeClipboard builds a clipboard set packet:
// [type:1] [sequence:8] [paste:1] [length:4] [text:N] = 14+N bytes.
func SerializeClipboard(text string, paste bool, sequence uint64) []byte {
	textBytes := []byte(text)

	buf := make([]byte, 14+len(textBytes))
	buf[0] = CtrlSetClipboard
	binary.BigEndian.PutUint64(buf[1:9], sequence)
	if paste {
		buf[9] = 1
	}
	binary.BigEndian.PutUint32(buf[10:14], uint32(len(textBytes)))
	copy(buf[14:], textBytes)
	return buf
}

// SerializeBackOrScreenOn builds a back-button / screen-on packet:
// [type:1] [action:1] = 2 bytes.
func SerializeBackOrScreenOn(action int) []byte {
	return []byte{CtrlBackOrScreenOn, byte(action)}
}
