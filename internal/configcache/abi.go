package configcache

// Four-byte function selectors for the on-chain vault ABI surface this
// cache reads against. Values and call sequence are taken verbatim from
// original_source/plimsoll/proxy/vault_config.py — these are fixed by
// the deployed vault contract, not a design choice.
const (
	selVelocityModule  = "0x951be135" // velocityModule() -> address
	selWhitelistModule = "0x8fea31b0" // whitelistModule() -> address
	selDrawdownModule  = "0xdd4c17ae" // drawdownModule() -> address
	selOwner           = "0x8da5cb5b" // owner() -> address
	selEmergencyLocked = "0xe92fab8d" // emergencyLocked() -> bool

	selMaxPerHour    = "0x335c9d8c" // maxPerHour() -> uint256 (wei)
	selMaxSingleTx   = "0x0cf96009" // maxSingleTx() -> uint256 (wei)
	selMaxDrawdownBp = "0x5661d461" // maxDrawdownBps() -> uint256

	selWhitelistCount   = "0x3edff20f" // getWhitelistCount() -> uint256
	selWhitelistedList  = "0x05c8d3eb" // whitelistedList(uint256) -> address
	selWhitelisted      = "0xd936547e" // whitelisted(address) -> bool
)

// maxWhitelistEntries caps the per-vault whitelist read loop so a
// misbehaving or adversarial vault contract can't force an unbounded
// number of eth_call round trips.
const maxWhitelistEntries = 100

const weiPerEth = 1e18
