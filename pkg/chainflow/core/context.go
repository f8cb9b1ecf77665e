package core

type ctxKey string

const CtxKeyCaller ctxKey = ctxKey("caller")
