package console

import "testing"

func TestBaudToBytesPerSecond(t *testing.T) {
	cases := []struct {
		baud int
		want int
	}{
		{115200, 11520},
		{9600, 960},
		{0, 11520},  // falls back to the 115200 default
		{-1, 11520}, // likewise for a nonsensical negative rate
	}
	for _, c := range cases {
		if got := baudToBytesPerSecond(c.baud); got != c.want {
			t.Errorf("baudToBytesPerSecond(%d) = %d, want %d", c.baud, got, c.want)
		}
	}
}

// TestNew_OpensAPtyPair is an integration smoke test: it exercises the real
// pty allocation path and is skipped rather than failed where the host
// environment has none available (a sandboxed CI runner, a container
// without /dev/ptmx), since that is a host capability this package depends
// on rather than something its own logic controls.
func TestNew_OpensAPtyPair(t *testing.T) {
	dev, err := New(Config{BaudRate: 115200})
	if err != nil {
		t.Skipf("host does not support pty allocation: %v", err)
	}
	defer dev.Close()

	if dev.SlavePath() == "" {
		t.Fatalf("SlavePath is empty")
	}
}
