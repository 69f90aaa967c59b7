package driven

// SecretCodec seals credential secrets at rest. The passphrase is supplied
// per call so the codec holds no key material of its own.
type SecretCodec interface {
	Encrypt(plaintext, passphrase string) (string, error)
	Decrypt(blob, passphrase string) (string, error)
}
