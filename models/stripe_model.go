package models

import "database/sql"

type StripeLinkage struct {
	CustomerID     sql.NullString
	SubscriptionID sql.NullString
}
