package password

import "testing"

func TestHashAndVerify(t *testing.T) {
	encoded, err := Hash("s3cret-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	if !Verify("s3cret-pass", encoded) {
		t.Fatal("correct password rejected")
	}
	if Verify("wrong-pass", encoded) {
		t.Fatal("wrong password accepted")
	}
	if Verify("s3cret-pass", "$argon2id$v=19$bogus") {
		t.Fatal("malformed hash accepted")
	}
}

func TestGenerate(t *testing.T) {
	a, err := Generate(12)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, err := Generate(12)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(a) != 12 || len(b) != 12 {
		t.Fatalf("unexpected lengths %d, %d", len(a), len(b))
	}
	if a == b {
		t.Fatal("generated credentials collided")
	}
}
