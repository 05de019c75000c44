package repository

// Comparators for the allow-listed sort keys. Both persistence backends
// sort materialized pages with these so ordering is identical everywhere.

// LessBookBy orders books ascending by the given sort key.
func LessBookBy(key string, a, b BookDocument) bool {
	switch key {
	case "title":
		return a.Title < b.Title
	case "author":
		return a.Author < b.Author
	case "price":
		return a.Price < b.Price
	case "publicationYear":
		return a.PublicationYear < b.PublicationYear
	case "createdAt":
		return a.CreatedAt.Before(b.CreatedAt)
	case "updatedAt":
		return a.UpdatedAt.Before(b.UpdatedAt)
	default:
		return false
	}
}

// LessReservationBy orders reservations ascending by the given sort key.
func LessReservationBy(key string, a, b ReservationDocument) bool {
	switch key {
	case "reservedAt":
		return a.ReservedAt.Before(b.ReservedAt)
	case "dueDate":
		return a.DueDate.Before(b.DueDate)
	case "status":
		return a.Status < b.Status
	case "createdAt":
		return a.CreatedAt.Before(b.CreatedAt)
	case "updatedAt":
		return a.UpdatedAt.Before(b.UpdatedAt)
	default:
		return false
	}
}

// LessWalletBy orders wallets ascending by the given sort key.
func LessWalletBy(key string, a, b WalletDocument) bool {
	switch key {
	case "balance":
		return a.Balance < b.Balance
	case "createdAt":
		return a.CreatedAt.Before(b.CreatedAt)
	case "updatedAt":
		return a.UpdatedAt.Before(b.UpdatedAt)
	default:
		return false
	}
}

// Matches reports whether the document satisfies every set constraint.
func (f BookFilter) Matches(d BookDocument) bool {
	if f.Author != "" && d.Author != f.Author {
		return false
	}
	if f.Publisher != "" && d.Publisher != f.Publisher {
		return false
	}
	if f.ISBN != "" && d.ISBN != f.ISBN {
		return false
	}
	if f.PriceMin != nil && d.Price < *f.PriceMin {
		return false
	}
	if f.PriceMax != nil && d.Price > *f.PriceMax {
		return false
	}
	if f.PublicationYearMin != nil && d.PublicationYear < *f.PublicationYearMin {
		return false
	}
	if f.PublicationYearMax != nil && d.PublicationYear > *f.PublicationYearMax {
		return false
	}
	return true
}

// Matches reports whether the document satisfies every set constraint.
func (f ReservationFilter) Matches(d ReservationDocument) bool {
	if f.UserID != "" && d.UserID != f.UserID {
		return false
	}
	if f.BookID != "" && d.BookID != f.BookID {
		return false
	}
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	if f.FeeCharged != nil && d.FeeCharged != *f.FeeCharged {
		return false
	}
	if f.DueBefore != nil && !d.DueDate.Before(*f.DueBefore) {
		return false
	}
	if f.DueAfter != nil && !d.DueDate.After(*f.DueAfter) {
		return false
	}
	return true
}

// Matches reports whether the document satisfies every set constraint.
func (f WalletFilter) Matches(d WalletDocument) bool {
	if f.UserID != "" && d.UserID != f.UserID {
		return false
	}
	if f.BalanceMin != nil && d.Balance < *f.BalanceMin {
		return false
	}
	if f.BalanceMax != nil && d.Balance > *f.BalanceMax {
		return false
	}
	return true
}
