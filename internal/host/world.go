package host

import (
	"bytes"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/holiman/uint256"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/result"
)

//go:embed schema.cue
var worldSchema string

// World is the fixture a host answers read-only requests from: account
// code and balances, and canned module answers.
type World struct {
	Accounts map[calldata.Address]Account
	Modules  map[string]Canned
}

// Account is the chain state of one address.
type Account struct {
	Code    []byte
	Balance uint256.Int
}

// NewWorld returns an empty world.
func NewWorld() *World {
	return &World{
		Accounts: make(map[calldata.Address]Account),
		Modules:  make(map[string]Canned),
	}
}

// WorldFile is the serialised form of a World, shared by the CUE fixture
// and YAML scenarios.
type WorldFile struct {
	Accounts map[string]AccountFile  `json:"accounts" yaml:"accounts"`
	Modules  map[string][]AnswerFile `json:"modules" yaml:"modules"`
}

// AccountFile is the serialised form of an Account. Code is hex, Balance
// is decimal.
type AccountFile struct {
	Code    string `json:"code" yaml:"code"`
	Balance string `json:"balance" yaml:"balance"`
}

// AnswerFile is the serialised form of an Answer. At most one of
// Rollback, UserError and VMError may be set; otherwise the answer is a
// Return of the JSON view in Return.
type AnswerFile struct {
	Match     map[string]string `json:"match" yaml:"match"`
	Node      string            `json:"node" yaml:"node"`
	Return    any               `json:"return" yaml:"return"`
	Rollback  *string           `json:"rollback" yaml:"rollback"`
	UserError *string           `json:"user_error" yaml:"user_error"`
	VMError   *string           `json:"vm_error" yaml:"vm_error"`
}

// Result builds the answer outcome.
func (a AnswerFile) Result() (result.Result, error) {
	var set []result.Result
	if a.Rollback != nil {
		set = append(set, result.Rollback{Message: *a.Rollback})
	}
	if a.UserError != nil {
		set = append(set, result.UserError{Message: *a.UserError})
	}
	if a.VMError != nil {
		set = append(set, result.VMError{Message: *a.VMError})
	}
	switch len(set) {
	case 0:
		v, err := calldata.FromView(a.Return)
		if err != nil {
			return nil, fmt.Errorf("return: %w", err)
		}
		return result.Return{Value: v}, nil
	case 1:
		if a.Return != nil {
			return nil, fmt.Errorf("answer sets both return and an error")
		}
		return set[0], nil
	default:
		return nil, fmt.Errorf("answer sets more than one error")
	}
}

// Build converts f into a World.
func (f WorldFile) Build() (*World, error) {
	w := NewWorld()
	for addr, af := range f.Accounts {
		a, err := calldata.ParseAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", addr, err)
		}
		acct, err := af.build()
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", addr, err)
		}
		w.Accounts[a] = acct
	}
	for module, answers := range f.Modules {
		canned := make(Canned, 0, len(answers))
		for i, af := range answers {
			r, err := af.Result()
			if err != nil {
				return nil, fmt.Errorf("module %s answer %d: %w", module, i, err)
			}
			canned = append(canned, Answer{Match: af.Match, Node: af.Node, Result: r})
		}
		w.Modules[module] = canned
	}
	return w, nil
}

func (af AccountFile) build() (Account, error) {
	var acct Account
	code, err := hex.DecodeString(af.Code)
	if err != nil {
		return acct, fmt.Errorf("code: %w", err)
	}
	acct.Code = code

	if af.Balance != "" {
		n, ok := new(big.Int).SetString(af.Balance, 10)
		if !ok || n.Sign() < 0 {
			return acct, fmt.Errorf("balance %q is not a non-negative integer", af.Balance)
		}
		v, overflow := uint256.FromBig(n)
		if overflow {
			return acct, fmt.Errorf("balance %q overflows 256 bits", af.Balance)
		}
		acct.Balance = *v
	}
	return acct, nil
}

// LoadWorld reads a CUE world fixture and validates it against the world
// schema.
func LoadWorld(path string) (*World, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read world: %w", err)
	}
	return ParseWorld(src, path)
}

// ParseWorld compiles CUE source into a World. filename is used in error
// positions only.
func ParseWorld(src []byte, filename string) (*World, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(worldSchema, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile world schema: %w", err)
	}

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile world: %w", err)
	}

	v = schema.LookupPath(cue.ParsePath("#World")).Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validate world: %w", err)
	}

	raw, err := v.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("export world: %w", err)
	}

	var f WorldFile
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode world: %w", err)
	}
	return f.Build()
}
