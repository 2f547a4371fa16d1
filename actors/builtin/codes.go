package builtin

// Names of the built-in actor kinds, as they appear in an actors bundle manifest.
const (
	SystemActorName           = "system"
	InitActorName             = "init"
	CronActorName             = "cron"
	AccountActorName          = "account"
	StoragePowerActorName     = "storagepower"
	StorageMinerActorName     = "storageminer"
	StorageMarketActorName    = "storagemarket"
	PaymentChannelActorName   = "paymentchannel"
	MultisigActorName         = "multisig"
	RewardActorName           = "reward"
	VerifiedRegistryActorName = "verifiedregistry"
	DatacapActorName          = "datacap"
	// Introduced with actors v10.
	PlaceholderActorName            = "placeholder"
	EvmActorName                    = "evm"
	EthereumAddressManagerActorName = "eam"
	EthAccountActorName             = "ethaccount"
)

// Actor kinds present in every actors v9 bundle.
var BuiltinActorNamesV9 = []string{
	SystemActorName,
	InitActorName,
	CronActorName,
	AccountActorName,
	StoragePowerActorName,
	StorageMinerActorName,
	StorageMarketActorName,
	PaymentChannelActorName,
	MultisigActorName,
	RewardActorName,
	VerifiedRegistryActorName,
	DatacapActorName,
}

// Actor kinds present in every actors v10 bundle.
var BuiltinActorNamesV10 = append(append([]string{}, BuiltinActorNamesV9...),
	PlaceholderActorName,
	EvmActorName,
	EthereumAddressManagerActorName,
	EthAccountActorName,
)
