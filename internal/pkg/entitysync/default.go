package entitysync

import "github.com/ManuelReschke/ledgersync/app/repository"

// NewDefaultRegistry registers the customer, invoice and payment synchronizers.
func NewDefaultRegistry(fetcher Fetcher, repo repository.EntityRepository, source string) *Registry {
	reg := NewRegistry(fetcher, repo)
	reg.Register(NewCustomerSynchronizer(fetcher, repo, source))
	reg.Register(NewInvoiceSynchronizer(fetcher, repo, source))
	reg.Register(NewPaymentSynchronizer(fetcher, repo, source))
	return reg
}
