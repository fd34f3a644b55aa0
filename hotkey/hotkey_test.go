package hotkey

import "testing"

func TestParseKey(t *testing.T) {
	tests := []struct {
		name    string
		code    uint16
		ctrl    bool
		wantErr bool
	}{
		{"", codeLAlt, false, false},
		{"alt_l", codeLAlt, false, false},
		{"ctrl_r", codeRCtrl, false, false},
		{"f9", codeF9, false, false},
		{"ctrl_shift_space", codeSpace, true, false},
		{"caps_lock", 0, false, true},
	}
	for _, tt := range tests {
		k, err := ParseKey(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseKey(%q) err = %v", tt.name, err)
			continue
		}
		if k.Code != tt.code || k.Ctrl != tt.ctrl {
			t.Errorf("ParseKey(%q) = %+v", tt.name, k)
		}
	}
}

func TestMatcherSingleKey(t *testing.T) {
	k, _ := ParseKey("alt_l")
	m := matcher{key: k}
	steps := []struct {
		code  uint16
		value int32
		want  transition
	}{
		{codeSpace, 1, none},
		{codeLAlt, 1, pressed},
		{codeLAlt, 2, none}, // autorepeat
		{codeLAlt, 1, none},
		{codeRAlt, 0, none},
		{codeLAlt, 0, released},
		{codeLAlt, 0, none},
	}
	for i, s := range steps {
		if got := m.feed(s.code, s.value); got != s.want {
			t.Errorf("step %d: feed(%d, %d) = %v, want %v", i, s.code, s.value, got, s.want)
		}
	}
}

func TestMatcherCombo(t *testing.T) {
	k, _ := ParseKey("ctrl_shift_space")
	m := matcher{key: k}
	if m.feed(codeSpace, 1) != none {
		t.Fatal("space alone should not trigger")
	}
	m.feed(codeSpace, 0)
	m.feed(codeLCtrl, 1)
	m.feed(codeRShift, 1)
	if m.feed(codeSpace, 1) != pressed {
		t.Fatal("ctrl+shift+space should press")
	}
	// releasing a modifier first still ends the hold on space up
	m.feed(codeLCtrl, 0)
	if m.feed(codeSpace, 0) != released {
		t.Fatal("space up should release")
	}
}
