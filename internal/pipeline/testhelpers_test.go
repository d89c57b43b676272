package pipeline

import "github.com/roofsignal/permit-ingest/internal/model"

func permitWith(permitType, rawAddress string) *model.Permit {
	return &model.Permit{PermitType: permitType, RawAddress: rawAddress}
}
