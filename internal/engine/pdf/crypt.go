package pdf

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"

	"github.com/tsawler/tabula/core"

	"github.com/five82/folio/internal/engine"
)

// padding is the fixed 32-byte string from the standard security handler.
var padding = []byte{
	0x28, 0xbf, 0x4e, 0x5e, 0x4e, 0x75, 0x8a, 0x41,
	0x64, 0x00, 0x4e, 0x56, 0xff, 0xfa, 0x01, 0x08,
	0x2e, 0x2e, 0x00, 0xb6, 0xd0, 0x68, 0x3e, 0x80,
	0x2f, 0x0c, 0xa9, 0xfe, 0x64, 0x53, 0x69, 0x7a,
}

type cryptMethod int

const (
	methodIdentity cryptMethod = iota
	methodRC4
	methodAES
)

// security implements the standard security handler, revisions 2 to 6.
type security struct {
	v, r        int
	keyLen      int
	o, u        []byte
	oe, ue      []byte
	p           uint32
	id0         []byte
	encryptMeta bool
	streams     cryptMethod
	strings     cryptMethod

	key []byte
}

func dictInt(d core.Dict, key string, def int) int {
	if v, ok := d.GetInt(key); ok {
		return int(v)
	}
	return def
}

func dictBytes(d core.Dict, key string) []byte {
	if v, ok := d.GetString(key); ok {
		return []byte(v)
	}
	return nil
}

func newSecurity(enc, trailer core.Dict) (*security, error) {
	filter, _ := enc.GetName("Filter")
	if filter != "Standard" {
		return nil, fmt.Errorf("security handler %q: %w", string(filter), engine.ErrUnsupportedEncryption)
	}
	s := &security{
		v:           dictInt(enc, "V", 0),
		r:           dictInt(enc, "R", 0),
		o:           dictBytes(enc, "O"),
		u:           dictBytes(enc, "U"),
		oe:          dictBytes(enc, "OE"),
		ue:          dictBytes(enc, "UE"),
		p:           uint32(int32(dictInt(enc, "P", 0))),
		encryptMeta: true,
	}
	if b, ok := enc.GetBool("EncryptMetadata"); ok {
		s.encryptMeta = bool(b)
	}
	if ids, ok := trailer.GetArray("ID"); ok && len(ids) > 0 {
		if id, ok := ids[0].(core.String); ok {
			s.id0 = []byte(id)
		}
	}

	switch s.v {
	case 1:
		s.keyLen = 5
		s.streams, s.strings = methodRC4, methodRC4
	case 2:
		s.keyLen = dictInt(enc, "Length", 40) / 8
		s.streams, s.strings = methodRC4, methodRC4
	case 4:
		s.keyLen = dictInt(enc, "Length", 128) / 8
		var err error
		if s.streams, err = cryptFilter(enc, "StmF"); err != nil {
			return nil, err
		}
		if s.strings, err = cryptFilter(enc, "StrF"); err != nil {
			return nil, err
		}
	case 5:
		s.keyLen = 32
		s.streams, s.strings = methodAES, methodAES
	default:
		return nil, fmt.Errorf("encryption version %d: %w", s.v, engine.ErrUnsupportedEncryption)
	}

	switch {
	case s.r < 2 || s.r > 6:
		return nil, fmt.Errorf("security revision %d: %w", s.r, engine.ErrUnsupportedEncryption)
	case s.r >= 5 && (len(s.o) < 48 || len(s.u) < 48 || len(s.oe) < 32 || len(s.ue) < 32):
		return nil, fmt.Errorf("truncated AES-256 entries: %w", engine.ErrUnsupportedEncryption)
	case s.r < 5 && (len(s.o) < 32 || len(s.u) < 32):
		return nil, fmt.Errorf("truncated O or U entry: %w", engine.ErrUnsupportedEncryption)
	case s.r < 5 && (s.keyLen < 5 || s.keyLen > 16):
		return nil, fmt.Errorf("key length %d: %w", s.keyLen*8, engine.ErrUnsupportedEncryption)
	}
	return s, nil
}

func cryptFilter(enc core.Dict, key string) (cryptMethod, error) {
	name, ok := enc.GetName(key)
	if !ok || name == "Identity" {
		return methodIdentity, nil
	}
	filters, _ := enc.GetDict("CF")
	cf, ok := filters.GetDict(string(name))
	if !ok {
		return 0, fmt.Errorf("crypt filter %q missing: %w", string(name), engine.ErrUnsupportedEncryption)
	}
	cfm, _ := cf.GetName("CFM")
	switch cfm {
	case "V2":
		return methodRC4, nil
	case "AESV2", "AESV3":
		return methodAES, nil
	case "None", "":
		return methodIdentity, nil
	default:
		return 0, fmt.Errorf("crypt method %q: %w", string(cfm), engine.ErrUnsupportedEncryption)
	}
}

// authenticate tries password as the user password, then as the owner
// password. On success the file key is kept for decryption.
func (s *security) authenticate(password string) bool {
	if s.r >= 5 {
		return s.authenticateAES256([]byte(password))
	}
	pw := []byte(password)
	if key := s.userKey(pw); key != nil {
		s.key = key
		return true
	}
	if key := s.userKey(s.ownerToUser(pw)); key != nil {
		s.key = key
		return true
	}
	return false
}

func pad(pw []byte) []byte {
	out := make([]byte, 32)
	n := copy(out, pw)
	copy(out[n:], padding)
	return out
}

// fileKey derives the RC4/AES-128 file key from a user password.
func (s *security) fileKey(pw []byte) []byte {
	h := md5.New()
	h.Write(pad(pw))
	h.Write(s.o[:32])
	var p [4]byte
	binary.LittleEndian.PutUint32(p[:], s.p)
	h.Write(p[:])
	h.Write(s.id0)
	if s.r >= 4 && !s.encryptMeta {
		h.Write([]byte{0xff, 0xff, 0xff, 0xff})
	}
	key := h.Sum(nil)
	if s.r >= 3 {
		for i := 0; i < 50; i++ {
			sum := md5.Sum(key[:s.keyLen])
			key = sum[:]
		}
	}
	return key[:s.keyLen]
}

// userEntry computes the /U value a user password would produce.
func (s *security) userEntry(key []byte) []byte {
	if s.r == 2 {
		return rc4Apply(key, padding)
	}
	h := md5.New()
	h.Write(padding)
	h.Write(s.id0)
	out := rc4Apply(key, h.Sum(nil))
	for i := byte(1); i <= 19; i++ {
		out = rc4Apply(xorKey(key, i), out)
	}
	return out
}

func (s *security) userKey(pw []byte) []byte {
	key := s.fileKey(pw)
	want := s.userEntry(key)
	n := 32
	if s.r >= 3 {
		n = 16
	}
	if bytes.Equal(want[:n], s.u[:n]) {
		return key
	}
	return nil
}

func (s *security) ownerRC4Key(pw []byte) []byte {
	sum := md5.Sum(pad(pw))
	key := sum[:]
	if s.r >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(key)
			key = sum[:]
		}
	}
	return key[:s.keyLen]
}

// ownerToUser recovers the padded user password from an owner password.
func (s *security) ownerToUser(pw []byte) []byte {
	key := s.ownerRC4Key(pw)
	out := append([]byte(nil), s.o[:32]...)
	if s.r == 2 {
		return rc4Apply(key, out)
	}
	for i := 19; i >= 0; i-- {
		out = rc4Apply(xorKey(key, byte(i)), out)
	}
	return out
}

func (s *security) authenticateAES256(pw []byte) bool {
	if len(pw) > 127 {
		pw = pw[:127]
	}
	u := s.u[:48]
	if bytes.Equal(s.hash(pw, u[32:40], nil), u[:32]) {
		key, err := aesUnwrap(s.hash(pw, u[40:48], nil), s.ue[:32])
		if err == nil {
			s.key = key
			return true
		}
	}
	o := s.o[:48]
	if bytes.Equal(s.hash(pw, o[32:40], u), o[:32]) {
		key, err := aesUnwrap(s.hash(pw, o[40:48], u), s.oe[:32])
		if err == nil {
			s.key = key
			return true
		}
	}
	return false
}

// hash is the revision 5 and 6 password hash.
func (s *security) hash(pw, salt, udata []byte) []byte {
	h := sha256.New()
	h.Write(pw)
	h.Write(salt)
	h.Write(udata)
	k := h.Sum(nil)
	if s.r == 5 {
		return k
	}

	for i := 0; ; i++ {
		seq := make([]byte, 0, len(pw)+len(k)+len(udata))
		seq = append(seq, pw...)
		seq = append(seq, k...)
		seq = append(seq, udata...)
		k1 := bytes.Repeat(seq, 64)

		block, _ := aes.NewCipher(k[:16])
		e := make([]byte, len(k1))
		cipher.NewCBCEncrypter(block, k[16:32]).CryptBlocks(e, k1)

		sum := 0
		for _, b := range e[:16] {
			sum += int(b)
		}
		var next hash.Hash
		switch sum % 3 {
		case 0:
			next = sha256.New()
		case 1:
			next = sha512.New384()
		default:
			next = sha512.New()
		}
		next.Write(e)
		k = next.Sum(nil)

		if i >= 63 && int(e[len(e)-1]) <= i+1-32 {
			break
		}
	}
	return k[:32]
}

func aesUnwrap(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, errors.New("unaligned key entry")
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(out, data)
	return out, nil
}

func rc4Apply(key, data []byte) []byte {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out
}

func xorKey(key []byte, b byte) []byte {
	out := make([]byte, len(key))
	for i, k := range key {
		out[i] = k ^ b
	}
	return out
}

// objectKey derives the per-object key for revisions 2 to 4.
func (s *security) objectKey(ref core.IndirectRef, aesMethod bool) []byte {
	if s.r >= 5 {
		return s.key
	}
	h := md5.New()
	h.Write(s.key)
	h.Write([]byte{byte(ref.Number), byte(ref.Number >> 8), byte(ref.Number >> 16)})
	h.Write([]byte{byte(ref.Generation), byte(ref.Generation >> 8)})
	if aesMethod {
		h.Write([]byte("sAlT"))
	}
	n := min(len(s.key)+5, 16)
	return h.Sum(nil)[:n]
}

func (s *security) decrypt(ref core.IndirectRef, data []byte, method cryptMethod) ([]byte, error) {
	if s.key == nil {
		return nil, engine.ErrPasswordRequired
	}
	switch method {
	case methodRC4:
		return rc4Apply(s.objectKey(ref, false), data), nil
	case methodAES:
		return aesDecrypt(s.objectKey(ref, true), data)
	default:
		return data, nil
	}
}

func (s *security) decryptStream(ref core.IndirectRef, data []byte) ([]byte, error) {
	return s.decrypt(ref, data, s.streams)
}

func (s *security) decryptString(ref core.IndirectRef, data []byte) ([]byte, error) {
	return s.decrypt(ref, data, s.strings)
}

// aesDecrypt reads the IV from the first block and strips PKCS#7 padding.
func aesDecrypt(key, data []byte) ([]byte, error) {
	if len(data) < 2*aes.BlockSize || len(data)%aes.BlockSize != 0 {
		if len(data) == aes.BlockSize {
			return nil, nil
		}
		return nil, fmt.Errorf("aes payload of %d bytes", len(data))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes key: %w", err)
	}
	iv, body := data[:aes.BlockSize], data[aes.BlockSize:]
	out := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, body)
	n := int(out[len(out)-1])
	if n == 0 || n > aes.BlockSize || n > len(out) {
		return out, nil
	}
	return out[:len(out)-n], nil
}
