package cache

import (
	"testing"
	"time"
)

func TestMemory_SetGet(t *testing.T) {
	c := NewMemory()
	if err := c.Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok := c.Get("k")
	if !ok || string(got) != "v" {
		t.Errorf("Get() = %q, %v; want %q, true", got, ok, "v")
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("Get() on missing key should report absence")
	}
}

func TestMemory_TTLExpiry(t *testing.T) {
	c := NewMemory()
	base := time.Now()
	c.now = func() time.Time { return base }

	if err := c.Set("k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry should be visible before expiry")
	}

	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, ok := c.Get("k"); ok {
		t.Error("entry should have expired")
	}
}

func TestMemory_ZeroTTLNeverExpires(t *testing.T) {
	c := NewMemory()
	base := time.Now()
	c.now = func() time.Time { return base }

	if err := c.Set("k", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	c.now = func() time.Time { return base.Add(1000 * time.Hour) }
	if _, ok := c.Get("k"); !ok {
		t.Error("zero-TTL entry must not expire")
	}
}

func TestMemory_Overwrite(t *testing.T) {
	c := NewMemory()
	c.Set("k", []byte("old"), 0)
	c.Set("k", []byte("new"), 0)
	got, _ := c.Get("k")
	if string(got) != "new" {
		t.Errorf("overwrite failed, got %q", got)
	}
}

func TestMemory_ValueIsolation(t *testing.T) {
	c := NewMemory()
	src := []byte("abc")
	c.Set("k", src, 0)
	src[0] = 'x'

	got, _ := c.Get("k")
	if string(got) != "abc" {
		t.Errorf("stored value aliased caller slice: %q", got)
	}
	got[0] = 'y'
	again, _ := c.Get("k")
	if string(again) != "abc" {
		t.Errorf("returned value aliased stored slice: %q", again)
	}
}

type payload struct {
	Query string `json:"query"`
	Hits  int    `json:"hits"`
}

func TestJSONHelpers(t *testing.T) {
	c := NewMemory()
	in := payload{Query: "earbuds", Hits: 3}
	if err := SetJSON(c, "p", in, 0); err != nil {
		t.Fatal(err)
	}

	var out payload
	if !GetJSON(c, "p", &out) {
		t.Fatal("GetJSON() reported miss")
	}
	if out != in {
		t.Errorf("round trip mismatch: %+v != %+v", out, in)
	}

	var missing payload
	if GetJSON(c, "absent", &missing) {
		t.Error("GetJSON() on missing key should report miss")
	}

	c.Set("bad", []byte("{not json"), 0)
	var corrupt payload
	if GetJSON(c, "bad", &corrupt) {
		t.Error("GetJSON() on corrupt entry should report miss")
	}
}

func TestBadger_RoundTrip(t *testing.T) {
	b, err := NewBadger(t.TempDir())
	if err != nil {
		t.Fatalf("NewBadger() error = %v", err)
	}
	defer b.Close()

	if err := b.Set("k", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	got, ok := b.Get("k")
	if !ok || string(got) != "v" {
		t.Errorf("Get() = %q, %v", got, ok)
	}

	if err := b.Delete("k"); err != nil {
		t.Fatal(err)
	}
	if _, ok := b.Get("k"); ok {
		t.Error("deleted key still present")
	}
}

func TestBadger_TTL(t *testing.T) {
	b, err := NewBadger(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if err := b.Set("short", []byte("v"), 50*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if _, ok := b.Get("short"); !ok {
		t.Fatal("entry should be visible before expiry")
	}
	time.Sleep(120 * time.Millisecond)
	if _, ok := b.Get("short"); ok {
		t.Error("entry should have expired")
	}
}
