package schema

import "fmt"

// Scale is the number of decimal places used by a scaled integer.
// Example: Scale=8 means the integer value is scaled by 1e8.
type Scale int32

// ScaleSpec defines scaling for common numeric fields.
type ScaleSpec struct {
	PriceScale    Scale
	QuantityScale Scale
	NotionalScale Scale
}

// Account describes a trading account admitted to the gateway.
type Account struct {
	ID    AccountID
	Group GroupID
	Name  string
}

// implicitGroupBase reserves the upper half of the GroupID space for
// single-account groups. Configured groups must stay below it so the two
// ranges can never overlap, whatever order accounts are declared in.
const implicitGroupBase GroupID = 1 << 31

// ImplicitGroup returns the self-trade group for an account that belongs to
// no configured group.
func ImplicitGroup(id AccountID) GroupID {
	return implicitGroupBase | GroupID(id)
}

// Instrument describes a tradable instrument.
type Instrument struct {
	ID    InstrumentID
	Name  string
	Scale ScaleSpec
}

// Registry stores account and instrument mappings in a compact form. It is
// built at load time and read-only during evaluation, so multiple universes
// (per test, per verification run) can coexist.
type Registry struct {
	accounts         []Account
	instruments      []Instrument
	accountByName    map[string]AccountID
	instrumentByName map[string]InstrumentID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		accountByName:    make(map[string]AccountID),
		instrumentByName: make(map[string]InstrumentID),
	}
}

// AddAccount registers a new account and returns its ID. A zero group places
// the account in its own implicit group, which scopes self-trade prevention
// to the account alone. Configured groups must be below implicitGroupBase.
func (r *Registry) AddAccount(name string, group GroupID) (AccountID, error) {
	if name == "" {
		return 0, fmt.Errorf("account name is empty")
	}
	if group >= implicitGroupBase {
		return 0, fmt.Errorf("group id %d is in the implicit range", group)
	}
	if id, ok := r.accountByName[name]; ok {
		return id, fmt.Errorf("account already exists: %s", name)
	}
	id := AccountID(len(r.accounts) + 1)
	if group == 0 {
		group = ImplicitGroup(id)
	}
	r.accounts = append(r.accounts, Account{ID: id, Group: group, Name: name})
	r.accountByName[name] = id
	return id, nil
}

// AddInstrument registers a new instrument and returns its ID.
func (r *Registry) AddInstrument(name string, scale ScaleSpec) (InstrumentID, error) {
	if name == "" {
		return 0, fmt.Errorf("instrument name is empty")
	}
	if id, ok := r.instrumentByName[name]; ok {
		return id, fmt.Errorf("instrument already exists: %s", name)
	}
	id := InstrumentID(len(r.instruments) + 1)
	r.instruments = append(r.instruments, Instrument{ID: id, Name: name, Scale: scale})
	r.instrumentByName[name] = id
	return id, nil
}

// Account returns the account entry for an ID.
func (r *Registry) Account(id AccountID) (Account, bool) {
	idx := int(id) - 1
	if idx < 0 || idx >= len(r.accounts) {
		return Account{}, false
	}
	return r.accounts[idx], true
}

// Instrument returns the instrument entry for an ID.
func (r *Registry) Instrument(id InstrumentID) (Instrument, bool) {
	idx := int(id) - 1
	if idx < 0 || idx >= len(r.instruments) {
		return Instrument{}, false
	}
	return r.instruments[idx], true
}

// Group returns the STP group for an account. The zero group means the
// account is unknown.
func (r *Registry) Group(id AccountID) GroupID {
	acct, ok := r.Account(id)
	if !ok {
		return 0
	}
	return acct.Group
}

// AccountIDByName resolves an account name.
func (r *Registry) AccountIDByName(name string) (AccountID, bool) {
	id, ok := r.accountByName[name]
	return id, ok
}

// InstrumentIDByName resolves an instrument name.
func (r *Registry) InstrumentIDByName(name string) (InstrumentID, bool) {
	id, ok := r.instrumentByName[name]
	return id, ok
}

// Accounts returns all registered accounts.
func (r *Registry) Accounts() []Account {
	return r.accounts
}

// Instruments returns all registered instruments.
func (r *Registry) Instruments() []Instrument {
	return r.instruments
}
