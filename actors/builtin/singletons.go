package builtin

import (
	addr "github.com/filecoin-project/go-address"
)

// Addresses for singleton system actors.
var (
	// Distinguished AccountActor that is the source of system implicit messages.
	SystemActorAddr           = mustMakeAddress(0)
	InitActorAddr             = mustMakeAddress(1)
	RewardActorAddr           = mustMakeAddress(2)
	CronActorAddr             = mustMakeAddress(3)
	StoragePowerActorAddr     = mustMakeAddress(4)
	StorageMarketActorAddr    = mustMakeAddress(5)
	VerifiedRegistryActorAddr = mustMakeAddress(6)
	DatacapActorAddr          = mustMakeAddress(7)
	// Introduced with actors v10.
	EthereumAddressManagerActorAddr = mustMakeAddress(10)
	// Distinguished AccountActor that is the destination of all burnt funds.
	BurntFundsActorAddr = mustMakeAddress(99)
)

// The ID of the Ethereum Address Manager, which is also the namespace of delegated (f4) addresses it assigns.
const EthereumAddressManagerActorID = 10

const FirstNonSingletonActorId = 100

// Branching factor of the HAMTs holding the state tree and the init actor's address map.
const DefaultHamtBitwidth = 5

func mustMakeAddress(id uint64) addr.Address {
	address, err := addr.NewIDAddress(id)
	if err != nil {
		panic(err)
	}
	return address
}
