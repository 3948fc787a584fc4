package programs

import (
	"github.com/roach88/ndvm/internal/eqprinciple"
	"github.com/roach88/ndvm/internal/nondet"
	"github.com/roach88/ndvm/internal/vm"
)

// Program names.
const (
	NameEcho         = "echo"
	NameAdd          = "add"
	NameRollback     = "rollback"
	NameFail         = "fail"
	NamePanic        = "panic"
	NameMessage      = "message"
	NameBurn         = "burn"
	NameBalance      = "balance"
	NameCode         = "code"
	NameStorageRead  = "storage.read"
	NameStorageWrite = "storage.write"
	NameIncrement    = "counter.increment"
	NameEmit         = "emit"
	NameSend         = "send"
	NameDeploy       = "deploy"
	NameEthCall      = "eth.call"
	NameEthSend      = "eth.send"
	NameSandbox      = "sandbox"
	NameFallback     = "sandbox.fallback"
	NameStrict       = "nondet.strict"
	NamePrompt       = "nondet.prompt"
	NameSummarize    = "nondet.summarize"
	NameWeb          = "nondet.web"
	NameChecked      = "nondet.checked"
	NameLazy         = "nondet.lazy"
	NameRender       = "nondet.render"
)

// Check names.
const (
	CheckIntInRange = "int_in_range"
	CheckSameKind   = "same_kind"
)

// Register adds the builtin programs and checks to reg. Nondet programs
// run through engine and judge with oracle; a nil oracle uses the
// llm.template host module.
func Register(reg *vm.Registry, engine *nondet.Engine, oracle eqprinciple.Oracle) {
	if oracle == nil {
		oracle = eqprinciple.ModuleOracle{}
	}
	nd := nondetPrograms{engine: engine, oracle: oracle}

	for name, p := range map[string]vm.Program{
		NameEcho:         Echo,
		NameAdd:          Add,
		NameRollback:     Rollback,
		NameFail:         Fail,
		NamePanic:        Panic,
		NameMessage:      Message,
		NameBurn:         Burn,
		NameBalance:      Balance,
		NameCode:         Code,
		NameStorageRead:  StorageRead,
		NameStorageWrite: StorageWrite,
		NameIncrement:    Increment,
		NameEmit:         Emit,
		NameSend:         Send,
		NameDeploy:       Deploy,
		NameEthCall:      EthCall,
		NameEthSend:      EthSend,
		NameSandbox:      Sandbox,
		NameFallback:     Fallback,
		NameStrict:       nd.Strict,
		NamePrompt:       nd.Prompt,
		NameSummarize:    nd.Summarize,
		NameWeb:          nd.Web,
		NameChecked:      nd.Checked,
		NameLazy:         nd.Lazy,
		NameRender:       nd.Render,
	} {
		reg.MustRegister(name, p)
	}
	reg.MustRegisterCheck(CheckIntInRange, IntInRange)
	reg.MustRegisterCheck(CheckSameKind, SameKind)
}

// NewRegistry returns a registry holding the builtin programs.
func NewRegistry(engine *nondet.Engine) *vm.Registry {
	reg := vm.NewRegistry()
	Register(reg, engine, nil)
	return reg
}
