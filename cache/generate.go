package cache

//go:generate go run go.uber.org/mock/mockgen@v0.5.2 -destination=../internal/mocks/cache.go -package=mocks github.com/meigma/rarfs/cache Confirmer,Extractor
