package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           patchscope API
// @version         1.0
// @description     Inspect and patch hidden states of a local GGUF language model.
//
// @contact.name   patchscope maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
