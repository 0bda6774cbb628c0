package usbtmc

import "testing"

func TestBulkOutHeader(t *testing.T) {
	hdr := encBulkOutHeader(7, 5)
	expected := [12]byte{0x01, 7, 0xf8, 0, 5, 0, 0, 0, 0x01, 0, 0, 0}
	for i := range hdr {
		if hdr[i] != expected[i] {
			t.Errorf("expected %#x at offset %d got %#x", expected[i], i, hdr[i])
		}
	}
}

func TestBulkInHeaderTerminator(t *testing.T) {
	term := byte('\n')
	hdr := encBulkInHeader(1, 1500, &term)
	if hdr[0] != 0x02 {
		t.Errorf("expected REQUEST_DEV_DEP_MSG_IN got %#x", hdr[0])
	}
	if hdr[4] != 0xdc || hdr[5] != 0x05 {
		t.Errorf("expected 1500 LSB first, got %#x %#x", hdr[4], hdr[5])
	}
	if hdr[8] != 0x02 || hdr[9] != '\n' {
		t.Errorf("expected term char enabled with \\n, got %#x %#x", hdr[8], hdr[9])
	}
}

func TestFrameAligns(t *testing.T) {
	b := frame(1, []byte("*IDN?\n"))
	if len(b)%4 != 0 {
		t.Errorf("expected 4 byte alignment, got %d bytes", len(b))
	}
	if string(b[12:18]) != "*IDN?\n" {
		t.Errorf("expected payload after header, got %q", b[12:18])
	}
}

func TestUnframeTrimsPadding(t *testing.T) {
	hdr := encBulkOutHeader(3, 3)
	buf := append(hdr[:], 'a', 'b', 'c', 0)
	data, err := unframe(buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "abc" {
		t.Errorf("expected abc got %q", data)
	}
	if _, err := unframe(buf[:4]); err == nil {
		t.Error("expected a short buffer to be an error")
	}
}

func TestBTagSkipsZero(t *testing.T) {
	g := bTagGen{value: 254}
	if v := g.next(); v != 255 {
		t.Errorf("expected 255 got %d", v)
	}
	if v := g.next(); v != 1 {
		t.Errorf("expected the tag to wrap to 1, got %d", v)
	}
}
