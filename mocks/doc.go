package mocks

//go:generate mockgen -destination=store.go -package=mocks github.com/chimerakang/reservation-go Store
