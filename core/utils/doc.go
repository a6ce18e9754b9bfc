// Package utils provides small numeric helpers shared by the inventory,
// reconciliation and bridge packages: tolerant price comparison, bulk
// quantity normalization and loose conversion of decoded JSON values.
package utils
