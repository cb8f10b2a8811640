package main

import "gopkg.in/yaml.v3"

func yamlMarshal(v interface{}) (string, error) {
	b, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
