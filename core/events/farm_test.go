package events

import (
	"math/big"
	"testing"

	"nftfarm/crypto"
)

func TestFarmRewardAddedAttributes(t *testing.T) {
	var token, funder [20]byte
	token[19] = 0x20
	funder[19] = 0x04
	evt := FarmRewardAdded{
		Token:         token,
		Funder:        funder,
		Amount:        big.NewInt(100),
		PriceInPoints: new(big.Int).Lsh(big.NewInt(1), 80),
	}.Event()
	if evt.Type != TypeFarmRewardAdded {
		t.Fatalf("unexpected type %s", evt.Type)
	}
	if got, want := evt.Attributes["funder"], crypto.FromArray(funder).String(); got != want {
		t.Fatalf("funder attribute %s, want %s", got, want)
	}
	parsed, err := crypto.ParseAddress(evt.Attributes["token"])
	if err != nil || parsed != token {
		t.Fatalf("token attribute does not round trip: %v", err)
	}
	if evt.Attributes["priceInPoints"] != "1208925819614629174706176" || evt.Attributes["cap"] != "0" {
		t.Fatalf("unexpected amounts %+v", evt.Attributes)
	}
}
