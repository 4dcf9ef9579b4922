package models

// planPrices фиксированный allow-list тарифов и соответствующих им
// идентификаторов цен платёжного провайдера. Идентификатор цены,
// пришедший от клиента, принимается только если он есть в этом списке —
// защита от подмены цены на стороне клиента.
var planPrices = map[SubscriptionTier]string{
	TierStarter:    "price_starter_monthly",
	TierPro:        "price_pro_monthly",
	TierEnterprise: "price_enterprise_monthly",
}

// PriceForTier возвращает идентификатор цены провайдера для тарифа.
func PriceForTier(t SubscriptionTier) (string, bool) {
	price, ok := planPrices[t]
	return price, ok
}

// TierForPrice возвращает тариф по идентификатору цены провайдера.
// Используется при сверке: провайдер сообщает price id, локально хранится тариф.
func TierForPrice(price string) (SubscriptionTier, bool) {
	for tier, p := range planPrices {
		if p == price {
			return tier, true
		}
	}
	return "", false
}
