package domain

// Table is a mongo collection name
type Table string

const (
	TableListings      Table = "listings"
	TableBids          Table = "listing_bids"
	TableOffers        Table = "listing_offers"
	TablePurchases     Table = "listing_purchases"
	TableAnomalies     Table = "listing_anomalies"
	TableTrackerStates Table = "tracker_states"
	TableBlocks        Table = "blocks"
	TablePayTokens     Table = "pay_tokens"
)
