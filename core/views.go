package core

import (
	"math/big"
	"sort"

	"nftfarm/crypto"
	"nftfarm/native/farm"
)

// Status summarises the farm for operators and the read API.
type Status struct {
	Owner        string `json:"owner"`
	Phase        string `json:"phase"`
	Paused       bool   `json:"paused"`
	Now          int64  `json:"now"`
	LaunchTime   int64  `json:"launchTime"`
	FarmDeadline int64  `json:"farmDeadline"`
	ReleaseTime  int64  `json:"releaseTime"`
	ShareTotal   string `json:"shareTotal"`
	ShareCeiling string `json:"shareCeiling"`
	TotalSupply  uint64 `json:"totalSupply"`
	Cap          string `json:"cap"`
	RemainingCap string `json:"remainingCap"`
}

// PoolView renders a pool with bech32 identities and decimal amounts.
type PoolView struct {
	Collateral      string `json:"collateral"`
	Rate            string `json:"rate"`
	Capacity        uint64 `json:"capacity"`
	StakedCount     uint64 `json:"stakedCount"`
	ShareWeight     string `json:"shareWeight"`
	ShareWeightBase string `json:"shareWeightBase"`
	Share           string `json:"share"`
	AddedAt         int64  `json:"addedAt"`
}

// RewardView renders a reward allotment.
type RewardView struct {
	Token         string `json:"token"`
	Funder        string `json:"funder"`
	PriceInPoints string `json:"priceInPoints"`
	TotalFunded   string `json:"totalFunded"`
	Remaining     string `json:"remaining"`
	PaidOut       string `json:"paidOut"`
	Recovered     string `json:"recovered"`
}

// ItemView is one staked item with its outstanding accrual.
type ItemView struct {
	Pool         string `json:"pool"`
	ItemID       uint64 `json:"itemId"`
	StakedAt     int64  `json:"stakedAt"`
	CheckpointAt int64  `json:"checkpointAt"`
	Outstanding  string `json:"outstanding"`
}

// ClaimView is the amount of one token a holder has claimed.
type ClaimView struct {
	Token   string `json:"token"`
	Claimed string `json:"claimed"`
	Balance string `json:"balance"`
}

// HolderView is the full position of one holder.
type HolderView struct {
	Address        string      `json:"address"`
	StakedWeight   uint64      `json:"stakedWeight"`
	PendingPoints  string      `json:"pendingPoints"`
	UserRewards    string      `json:"userRewards"`
	SettledPoints  string      `json:"settledPoints"`
	RedeemedPoints string      `json:"redeemedPoints"`
	SpentPoints    string      `json:"spentPoints"`
	UnspentPoints  string      `json:"unspentPoints"`
	Items          []ItemView  `json:"items"`
	Claims         []ClaimView `json:"claims"`
}

func addrString(addr [20]byte) string {
	return crypto.FromArray(addr).String()
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func poolView(pool *farm.Pool) PoolView {
	return PoolView{
		Collateral:      addrString(pool.Collateral),
		Rate:            amountString(pool.Rate),
		Capacity:        pool.Capacity,
		StakedCount:     pool.StakedCount,
		ShareWeight:     amountString(pool.ShareWeight),
		ShareWeightBase: amountString(pool.ShareWeightBase),
		Share:           pool.Share().RatString(),
		AddedAt:         pool.AddedAt,
	}
}

func rewardView(reward *farm.RewardAllotment) RewardView {
	return RewardView{
		Token:         addrString(reward.Token),
		Funder:        addrString(reward.Funder),
		PriceInPoints: amountString(reward.PriceInPoints),
		TotalFunded:   amountString(reward.TotalFunded),
		Remaining:     amountString(reward.Remaining),
		PaidOut:       amountString(reward.PaidOut),
		Recovered:     amountString(reward.Recovered),
	}
}

// Status returns the farm summary.
func (n *Node) Status() (*Status, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	share, err := n.engine.ShareTotal()
	if err != nil {
		return nil, err
	}
	supply, err := n.engine.TotalSupply()
	if err != nil {
		return nil, err
	}
	total, err := n.engine.Cap()
	if err != nil {
		return nil, err
	}
	remaining, err := n.engine.RemainingCap()
	if err != nil {
		return nil, err
	}
	return &Status{
		Owner:        addrString(n.engine.Owner()),
		Phase:        n.engine.Phase().String(),
		Paused:       n.Paused(),
		Now:          n.engine.Now(),
		LaunchTime:   n.engine.LaunchTime(),
		FarmDeadline: n.engine.FarmDeadline(),
		ReleaseTime:  n.engine.ReleaseTime(),
		ShareTotal:   share.RatString(),
		ShareCeiling: n.engine.ShareCeiling().RatString(),
		TotalSupply:  supply,
		Cap:          amountString(total),
		RemainingCap: amountString(remaining),
	}, nil
}

// Pools lists every admitted pool.
func (n *Node) Pools() ([]PoolView, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	pools, err := n.engine.Pools()
	if err != nil {
		return nil, err
	}
	out := make([]PoolView, 0, len(pools))
	for _, pool := range pools {
		out = append(out, poolView(pool))
	}
	return out, nil
}

// Rewards lists every reward allotment.
func (n *Node) Rewards() ([]RewardView, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	rewards, err := n.engine.Rewards()
	if err != nil {
		return nil, err
	}
	out := make([]RewardView, 0, len(rewards))
	for _, reward := range rewards {
		out = append(out, rewardView(reward))
	}
	return out, nil
}

// Holder returns the position of one holder.
func (n *Node) Holder(addr [20]byte) (*HolderView, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	pos, err := n.engine.PositionAt(addr, n.engine.Now())
	if err != nil {
		return nil, err
	}
	account := pos.Account
	view := &HolderView{
		Address:        addrString(addr),
		StakedWeight:   account.StakedWeight,
		PendingPoints:  amountString(pos.Pending),
		UserRewards:    amountString(pos.Outstanding),
		SettledPoints:  amountString(account.SettledPoints),
		RedeemedPoints: amountString(account.RedeemedPoints),
		SpentPoints:    amountString(account.SpentPoints),
		UnspentPoints:  amountString(account.UnspentPoints()),
		Items:          make([]ItemView, 0, len(pos.Items)),
	}
	for _, item := range pos.Items {
		view.Items = append(view.Items, ItemView{
			Pool:         addrString(item.Record.Pool),
			ItemID:       item.Record.ItemID,
			StakedAt:     item.Record.StakedAt,
			CheckpointAt: item.Record.CheckpointAt,
			Outstanding:  amountString(item.Outstanding),
		})
	}
	rewards, err := n.engine.Rewards()
	if err != nil {
		return nil, err
	}
	for _, reward := range rewards {
		balance, err := n.bank.BalanceOf(reward.Token, addr)
		if err != nil {
			return nil, err
		}
		view.Claims = append(view.Claims, ClaimView{
			Token:   addrString(reward.Token),
			Claimed: amountString(account.Claimed(reward.Token)),
			Balance: amountString(balance),
		})
	}
	sort.Slice(view.Claims, func(i, j int) bool { return view.Claims[i].Token < view.Claims[j].Token })
	return view, nil
}

// ItemOwner reports who holds a collateral item outside custody.
func (n *Node) ItemOwner(collection [20]byte, itemID uint64) ([20]byte, bool, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.bank.OwnerOf(collection, itemID)
}

// TokenBalance returns the token balance of account.
func (n *Node) TokenBalance(token, account [20]byte) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.bank.BalanceOf(token, account)
}
