package registry

import (
	"bytes"
	"fmt"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/megaguards/mg-setup/internal/utils/logger"
	"github.com/megaguards/mg-setup/internal/utils/security"
)

// VerifySignature checks a detached OpenPGP signature of data against
// keyring. Keyring and signature may be armored or binary.
func VerifySignature(data, signature, keyring []byte) error {
	log := logger.Logger()

	keys, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(keyring))
	if err != nil {
		log.Debugf("keyring is not armored, trying binary format: %v", err)
		keys, err = openpgp.ReadKeyRing(bytes.NewReader(keyring))
		if err != nil {
			return fmt.Errorf("failed to parse keyring (tried armored and binary formats): %w", err)
		}
	}

	if bytes.Contains(signature, []byte("-----BEGIN PGP SIGNATURE-----")) {
		_, err = openpgp.CheckArmoredDetachedSignature(keys, bytes.NewReader(data), bytes.NewReader(signature), &packet.Config{})
	} else {
		_, err = openpgp.CheckDetachedSignature(keys, bytes.NewReader(data), bytes.NewReader(signature), &packet.Config{})
	}
	if err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}

// LoadSigned reads the registry at path after checking its detached
// signature against the keyring file.
func LoadSigned(path, signaturePath, keyringPath string) (*Registry, error) {
	data, err := security.SafeReadFile(path, security.RejectSymlinks)
	if err != nil {
		return nil, fmt.Errorf("reading registry %s: %w", path, err)
	}
	sig, err := security.SafeReadFile(signaturePath, security.RejectSymlinks)
	if err != nil {
		return nil, fmt.Errorf("reading registry signature %s: %w", signaturePath, err)
	}
	keyring, err := security.SafeReadFile(keyringPath, security.RejectSymlinks)
	if err != nil {
		return nil, fmt.Errorf("reading keyring %s: %w", keyringPath, err)
	}

	if err := VerifySignature(data, sig, keyring); err != nil {
		return nil, fmt.Errorf("registry %s: %w", path, err)
	}
	logger.Logger().Infof("Registry %s signature verified", path)

	reg, err := LoadBytes(data)
	if err != nil {
		return nil, fmt.Errorf("loading registry %s: %w", path, err)
	}
	return reg, nil
}

// Open loads the registry selected by configuration: the built-in table
// when path is empty, a signed file when signaturePath is set.
func Open(path, signaturePath, keyringPath string) (*Registry, error) {
	switch {
	case path == "":
		return Default()
	case signaturePath != "":
		return LoadSigned(path, signaturePath, keyringPath)
	default:
		return Load(path)
	}
}
