package password

import "testing"

func TestHashVerify_RoundTrip(t *testing.T) {
	t.Parallel()
	phc, err := Hash(Default, "s3cret-client-secret")
	if err != nil {
		t.Fatalf("Hash err: %v", err)
	}
	if !Verify("s3cret-client-secret", phc) {
		t.Fatalf("expected verify to succeed for same secret")
	}
	if Verify("otro-secreto", phc) {
		t.Fatalf("wrong secret must not verify")
	}
}

func TestVerify_RejectsGarbage(t *testing.T) {
	t.Parallel()
	if Verify("x", "not-a-phc-string") {
		t.Fatalf("garbage PHC must not verify")
	}
	if Verify("x", "") {
		t.Fatalf("empty PHC must not verify")
	}
}
