package keys

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestSimpleKeyfile(t *testing.T) {
	dir := t.TempDir()

	simpleKeyfile := NewSimpleKeyfile(filepath.Join(dir, "priv_key"))

	// Try a read, should get nothing
	key, err := simpleKeyfile.ReadKey()
	if err == nil {
		t.Fatalf("ReadKey should generate an error")
	}
	if key != nil {
		t.Fatalf("key is not nil")
	}

	key, _ = GenerateECDSAKey()

	if err := simpleKeyfile.WriteKey(key); err != nil {
		t.Fatalf("err: %v", err)
	}

	nKey, err := simpleKeyfile.ReadKey()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if !bytes.Equal(DumpPrivateKey(nKey), DumpPrivateKey(key)) {
		t.Fatalf("Keys do not match")
	}

	if !reflect.DeepEqual(CompressedPublicKey(&nKey.PublicKey), CompressedPublicKey(&key.PublicKey)) {
		t.Fatalf("Public keys do not match")
	}
}

func TestReadOrCreateKey(t *testing.T) {
	dir := t.TempDir()

	kf := NewSimpleKeyfile(filepath.Join(dir, "sub", "priv_key"))

	key, created, err := kf.ReadOrCreateKey()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !created {
		t.Fatalf("first call should create a key")
	}

	again, created, err := kf.ReadOrCreateKey()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if created {
		t.Fatalf("second call should read the existing key")
	}
	if PrivateKeyHex(key) != PrivateKeyHex(again) {
		t.Fatalf("keys should match")
	}
}

func TestFilePermissions(t *testing.T) {
	dir := t.TempDir()

	key, _ := GenerateECDSAKey()
	rawKey := PrivateKeyHex(key)

	shouldErr := []os.FileMode{
		0777, 0766, 0744,
		0677, 0666, 0644,
	}

	for i, fm := range shouldErr {
		badKeyPath := filepath.Join(dir, "priv_key_bad", string(rune('a'+i)))
		os.MkdirAll(filepath.Dir(badKeyPath), 0700)
		os.WriteFile(badKeyPath, []byte(rawKey), fm)
		os.Chmod(badKeyPath, fm)

		if _, err := NewSimpleKeyfile(badKeyPath).ReadKey(); err == nil {
			t.Fatalf("%o || badKeyFile should return permissions error", fm)
		}
	}

	shouldNotErr := []os.FileMode{
		0700, 0600, 0400,
	}

	for i, fm := range shouldNotErr {
		goodKeyPath := filepath.Join(dir, "priv_key_good", string(rune('a'+i)))
		os.MkdirAll(filepath.Dir(goodKeyPath), 0700)
		os.WriteFile(goodKeyPath, []byte(rawKey), fm)
		os.Chmod(goodKeyPath, fm)

		if _, err := NewSimpleKeyfile(goodKeyPath).ReadKey(); err != nil {
			t.Fatalf("%o || goodKeyFile should not return error. Got %v", fm, err)
		}
	}
}

func TestCompressedPublicKeyRoundTrip(t *testing.T) {
	key, _ := GenerateECDSAKey()

	raw := CompressedPublicKey(&key.PublicKey)
	if len(raw) != 33 {
		t.Fatalf("compressed key should be 33 bytes, not %d", len(raw))
	}

	pub, err := ParsePublicKey(raw)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if pub.X.Cmp(key.PublicKey.X) != 0 || pub.Y.Cmp(key.PublicKey.Y) != 0 {
		t.Fatalf("parsed public key does not match")
	}
}

func TestParsePrivateKeyRejectsBadLength(t *testing.T) {
	if _, err := ParsePrivateKey([]byte{1, 2, 3}); err == nil {
		t.Fatalf("short key should be rejected")
	}
	if _, err := ParsePrivateKey(make([]byte, PrivateKeySize)); err == nil {
		t.Fatalf("zero key should be rejected")
	}
}
