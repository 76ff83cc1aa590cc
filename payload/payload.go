// Package payload captures the exact init-code bytes of deployable artifacts.
// Address predictions hold only when every environment hashes bit-identical
// bytes, so all artifact material enters the system through this package.
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/baofinance/bao-factory/address"
)

// Artifact is a captured payload: the init-code bytes and their hash as used
// by the salted derivation.
type Artifact struct {
	Code []byte
	Hash common.Hash
}

// FromBytes captures raw init-code bytes.
func FromBytes(code []byte) (Artifact, error) {
	if len(code) == 0 {
		return Artifact{}, fmt.Errorf("empty init code")
	}
	cp := append([]byte(nil), code...)
	return Artifact{Code: cp, Hash: address.InitCodeHash(cp)}, nil
}

// FromHex captures init code given as a hex string, with or without the 0x
// prefix.
func FromHex(s string) (Artifact, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	code, err := hexutil.Decode(s)
	if err != nil {
		return Artifact{}, fmt.Errorf("decode init code hex: %w", err)
	}
	return FromBytes(code)
}

// jsonArtifact covers the two compiler artifact shapes in the wild:
// {"bytecode": "0x..."} and {"bytecode": {"object": "0x..."}}.
type jsonArtifact struct {
	Bytecode json.RawMessage `json:"bytecode"`
}

type jsonBytecodeObject struct {
	Object string `json:"object"`
}

// Load reads an artifact file: a JSON compiler artifact carrying a bytecode
// field, or a plain hex file.
func Load(path string) (Artifact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("read artifact %s: %w", path, err)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return fromJSON(path, trimmed)
	}
	return FromHex(string(trimmed))
}

func fromJSON(path string, raw []byte) (Artifact, error) {
	var art jsonArtifact
	if err := json.Unmarshal(raw, &art); err != nil {
		return Artifact{}, fmt.Errorf("parse artifact %s: %w", path, err)
	}
	if len(art.Bytecode) == 0 {
		return Artifact{}, fmt.Errorf("artifact %s: no bytecode field", path)
	}

	var hexStr string
	if err := json.Unmarshal(art.Bytecode, &hexStr); err != nil {
		var obj jsonBytecodeObject
		if err := json.Unmarshal(art.Bytecode, &obj); err != nil {
			return Artifact{}, fmt.Errorf("artifact %s: unsupported bytecode shape", path)
		}
		hexStr = obj.Object
	}
	return FromHex(hexStr)
}
