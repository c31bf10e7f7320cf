// Package billing prices on-chain game actions, verifies the native-coin
// payments that fund them, and dispatches the resulting contract calls.
// A payment transaction funds at most one action, ever.
package billing

import (
	"errors"
	"math/big"
)

var (
	ErrUnknownAction = errors.New("billing: unknown action type")
	ErrNotConfigured = errors.New("billing: action price not configured")
	ErrInvalidInput  = errors.New("billing: invalid input")
	ErrPaymentReused = errors.New("billing: payment tx already used")
	ErrNotOwner      = errors.New("billing: player is not owner of land")
	ErrOnchainCall   = errors.New("billing: on-chain call failed")
)

// Kind groups action types by the contract they dispatch into.
type Kind string

const (
	KindItem     Kind = "ITEM"
	KindResource Kind = "RESOURCE"
	KindCurrency Kind = "CURRENCY"
	KindLand     Kind = "LAND"
	KindParcel   Kind = "PARCEL"
)

// Operation selects the contract method within a kind.
type Operation string

const (
	OpMint              Operation = "MINT"
	OpBurn              Operation = "BURN"
	OpActivateBuilding  Operation = "ACTIVATE_BUILDING"
	OpSetBuildingActive Operation = "SET_BUILDING_ACTIVE"
)

// ActionType is the client-facing identifier of a priced action.
type ActionType string

const (
	ItemNFTMint             ActionType = "ITEM_NFT_MINT"
	ItemNFTBurn             ActionType = "ITEM_NFT_BURN"
	ResourceNFTMint         ActionType = "RESOURCE_NFT_MINT"
	ResourceNFTBurn         ActionType = "RESOURCE_NFT_BURN"
	CurrencyMint            ActionType = "CURRENCY_MINT"
	CurrencyBurn            ActionType = "CURRENCY_BURN"
	LandNFTMint             ActionType = "LAND_NFT_MINT"
	ParcelActivateBuilding  ActionType = "PARCEL_ACTIVATE_BUILDING"
	ParcelSetBuildingActive ActionType = "PARCEL_SET_BUILDING_ACTIVE"
)

// Action is one row of the static action table.
type Action struct {
	Type      ActionType
	Kind      Kind
	Operation Operation
	PriceWei  *big.Int
}

// Prices carries the per-category native prices in wei, as loaded from
// configuration. A nil or zero price leaves the category unconfigured.
type Prices struct {
	ItemNFT     *big.Int
	ResourceNFT *big.Int
	Currency    *big.Int
	LandNFT     *big.Int
	ParcelState *big.Int
}

// ActionTable resolves action types to their kind, operation, and price.
// Immutable after construction.
type ActionTable struct {
	actions map[ActionType]Action
}

// NewActionTable builds the static table from configured prices.
func NewActionTable(p Prices) *ActionTable {
	rows := []Action{
		{Type: ItemNFTMint, Kind: KindItem, Operation: OpMint, PriceWei: p.ItemNFT},
		{Type: ItemNFTBurn, Kind: KindItem, Operation: OpBurn, PriceWei: p.ItemNFT},
		{Type: ResourceNFTMint, Kind: KindResource, Operation: OpMint, PriceWei: p.ResourceNFT},
		{Type: ResourceNFTBurn, Kind: KindResource, Operation: OpBurn, PriceWei: p.ResourceNFT},
		{Type: CurrencyMint, Kind: KindCurrency, Operation: OpMint, PriceWei: p.Currency},
		{Type: CurrencyBurn, Kind: KindCurrency, Operation: OpBurn, PriceWei: p.Currency},
		{Type: LandNFTMint, Kind: KindLand, Operation: OpMint, PriceWei: p.LandNFT},
		{Type: ParcelActivateBuilding, Kind: KindParcel, Operation: OpActivateBuilding, PriceWei: p.ParcelState},
		{Type: ParcelSetBuildingActive, Kind: KindParcel, Operation: OpSetBuildingActive, PriceWei: p.ParcelState},
	}

	actions := make(map[ActionType]Action, len(rows))
	for _, row := range rows {
		if row.PriceWei == nil {
			row.PriceWei = big.NewInt(0)
		}
		actions[row.Type] = row
	}
	return &ActionTable{actions: actions}
}

// Lookup resolves an action type. A zero price is reported as
// ErrNotConfigured, never as free: a missing env var must not open a free
// mint.
func (t *ActionTable) Lookup(actionType ActionType) (Action, error) {
	a, ok := t.actions[actionType]
	if !ok {
		return Action{}, ErrUnknownAction
	}
	if a.PriceWei.Sign() <= 0 {
		return Action{}, ErrNotConfigured
	}
	return a, nil
}
