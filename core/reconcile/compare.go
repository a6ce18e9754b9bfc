package reconcile

import (
	"fmt"
	"strconv"

	"stock-sync/core/inventory"
	"stock-sync/core/utils"
)

// Compare lists the fields of remote that differ from local. Grade and sale
// percentage are only compared when extended is set.
func Compare(local, remote *inventory.Lot, extended bool) (UpdateFlags, []string) {
	var (
		flags    UpdateFlags
		mismatch []string
	)

	if local.Quantity != remote.Quantity {
		flags |= FlagQuantity
		mismatch = append(mismatch, formatInt("quantity", local.Quantity, remote.Quantity))
	}
	if !utils.PriceEqual(local.Price, remote.Price) {
		flags |= FlagPrice
		mismatch = append(mismatch, formatPrice("price", local.Price, remote.Price))
	}
	if local.Comments != remote.Comments {
		flags |= FlagComments
		mismatch = append(mismatch, fmt.Sprintf("comments: local=%q remote=%q", local.Comments, remote.Comments))
	}
	if local.Remarks != remote.Remarks {
		flags |= FlagRemarks
		mismatch = append(mismatch, fmt.Sprintf("remarks: local=%q remote=%q", local.Remarks, remote.Remarks))
	}
	if lb, rb := utils.NormalizeBulk(local.Bulk), utils.NormalizeBulk(remote.Bulk); lb != rb {
		flags |= FlagBulk
		mismatch = append(mismatch, formatInt("bulk", lb, rb))
	}
	if utils.HasCostBasis(local.CostBasis) && !utils.PriceEqual(local.CostBasis, remote.CostBasis) {
		flags |= FlagCostBasis
		mismatch = append(mismatch, formatPrice("cost_basis", local.CostBasis, remote.CostBasis))
	}
	if !tiersEqual(local.Tiers, remote.Tiers) {
		flags |= FlagTiers
		mismatch = append(mismatch, fmt.Sprintf("tiers: local=%s remote=%s", formatTiers(local.Tiers), formatTiers(remote.Tiers)))
	}

	if extended {
		if local.Grade != remote.Grade {
			flags |= FlagGrade
			mismatch = append(mismatch, fmt.Sprintf("grade: local=%s remote=%s", gradeString(local.Grade), gradeString(remote.Grade)))
		}
		if local.SalePercent != remote.SalePercent {
			flags |= FlagSalePercent
			mismatch = append(mismatch, formatInt("sale_percent", local.SalePercent, remote.SalePercent))
		}
	}

	return flags, mismatch
}

func tiersEqual(a, b [inventory.MaxTiers]inventory.Tier) bool {
	for i := range a {
		if a[i].Qty != b[i].Qty {
			return false
		}
		if a[i].Qty != 0 && !utils.PriceEqual(a[i].Price, b[i].Price) {
			return false
		}
	}
	return true
}

func formatInt(field string, local, remote int) string {
	return field + ": local=" + strconv.Itoa(local) + " remote=" + strconv.Itoa(remote)
}

func formatPrice(field string, local, remote float64) string {
	return fmt.Sprintf("%s: local=%.4f remote=%.4f", field, local, remote)
}

func formatTiers(t [inventory.MaxTiers]inventory.Tier) string {
	return fmt.Sprintf("%d@%.4f/%d@%.4f/%d@%.4f", t[0].Qty, t[0].Price, t[1].Qty, t[1].Price, t[2].Qty, t[2].Price)
}

func gradeString(g inventory.Grade) string {
	if g == inventory.GradeNone {
		return "-"
	}
	return string(g)
}
