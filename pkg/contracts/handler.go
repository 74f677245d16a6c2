package contracts

import "github.com/julienschmidt/httprouter"

// Handler is anything that can register its routes on the shared router.
type Handler interface {
	RegisterRoutes(*httprouter.Router)
}
