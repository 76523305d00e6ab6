package memcache

// MakeValues construct a retrieval response. An empty list is a plain END
func MakeValues(items []Item) Response {
	return Response{
		Kind:  KindValues,
		Items: items,
	}
}

// MakeStatus construct a status response such as STORED or NOT_FOUND
func MakeStatus(status string) Response {
	return Response{
		Kind:   KindStatus,
		Status: status,
	}
}

// MakeNumber construct the response of incr/decr
func MakeNumber(n uint64) Response {
	return Response{
		Kind:   KindNumber,
		Number: n,
	}
}

// MakeError construct the generic ERROR response sent for unknown commands
func MakeError() Response {
	return Response{Kind: KindError}
}

// MakeClientError construct a CLIENT_ERROR response
func MakeClientError(msg string) Response {
	return Response{
		Kind:    KindClientError,
		Message: msg,
	}
}

// MakeServerError construct a SERVER_ERROR response
func MakeServerError(msg string) Response {
	return Response{
		Kind:    KindServerError,
		Message: msg,
	}
}
