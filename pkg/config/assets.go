package config

import "strings"

// assetDecimals maps known asset identifiers to the number of minor-unit
// digits of one major unit
var assetDecimals = map[string]int32{
	"icp:native": 8,
}

// assetSymbols maps asset identifiers to display symbols
var assetSymbols = map[string]string{
	"icp:native": "ICP",
}

// GetAssetDecimals returns the decimals of the asset and whether it is known
func GetAssetDecimals(asset string) (int32, bool) {
	d, exists := assetDecimals[strings.ToLower(asset)]
	return d, exists
}

// GetAssetSymbol returns the display symbol of the asset, or the asset id itself
func GetAssetSymbol(asset string) string {
	symbol, exists := assetSymbols[strings.ToLower(asset)]
	if !exists {
		return asset
	}
	return symbol
}
