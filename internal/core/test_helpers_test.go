package core_test

import (
	"context"
	"testing"
	"time"

	"archivecore/internal/core"
	memory "archivecore/internal/infra/persistence/memory"
	"archivecore/pkg/domain"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, opts ...core.Option) *core.Service {
	t.Helper()
	store := memory.NewStore(core.NewDefaultRulesEngine())
	opts = append([]core.Option{core.WithNowFunc(func() time.Time { return testNow })}, opts...)
	return core.NewService(store, opts...)
}

func releasedDataverse(t *testing.T, svc *core.Service, alias string) domain.Dataverse {
	t.Helper()
	published := testNow.Add(-24 * time.Hour)
	dv, err := svc.CreateDataverse(context.Background(), domain.Dataverse{
		Alias:           alias,
		Name:            alias,
		PublicationDate: &published,
	})
	if err != nil {
		t.Fatalf("create dataverse: %v", err)
	}
	return dv
}

func draftDataset(t *testing.T, svc *core.Service, ownerID string, mutate func(*domain.Dataset)) domain.Dataset {
	t.Helper()
	ds := domain.Dataset{
		GlobalID: "doi:10.5072/FK2/ABCDE",
		OwnerID:  ownerID,
		Versions: []domain.DatasetVersion{{
			ID:    "v-draft",
			State: domain.StateDraft,
			Terms: &domain.TermsOfUseAndAccess{License: &domain.License{Name: "CC0 1.0", URI: "https://creativecommons.org/publicdomain/zero/1.0/"}},
		}},
	}
	if mutate != nil {
		mutate(&ds)
	}
	created, err := svc.CreateDataset(context.Background(), ds)
	if err != nil {
		t.Fatalf("create dataset: %v", err)
	}
	return created
}

func archiveUser() domain.User {
	return domain.User{Identifier: "@curator"}
}

func mustGetDataset(t *testing.T, svc *core.Service, id string) domain.Dataset {
	t.Helper()
	ds, ok := svc.GetDataset(id)
	if !ok {
		t.Fatalf("dataset %s not found", id)
	}
	return ds
}
